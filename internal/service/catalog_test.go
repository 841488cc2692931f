package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clothshop/internal/repo"
)

func TestListCategoriesOrderedByName(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Shoes", "Hats", "Jackets"} {
		_, err := f.admin.CreateCategory(f.ctx, name, nil)
		require.NoError(t, err)
	}

	categories, err := f.catalog.ListCategories(f.ctx)
	require.NoError(t, err)
	require.Len(t, categories, 3)
	assert.Equal(t, "Hats", categories[0].Name)
	assert.Equal(t, "Jackets", categories[1].Name)
	assert.Equal(t, "Shoes", categories[2].Name)
}

func TestGetCategoryNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.GetCategory(f.ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.catalog.GetItem(f.ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListItemsDropsMissingImages(t *testing.T) {
	f := newFixture(t)
	category, err := f.admin.CreateCategory(f.ctx, "Shoes", nil)
	require.NoError(t, err)

	item, err := f.admin.CreateItem(f.ctx, ItemInput{
		CategoryID: category.ID,
		Name:       "Sneaker",
		Sizes:      "42",
		Prices:     map[int64]string{f.currencyID(t, "RUB"): "100"},
		Images:     []Upload{pngUpload(t, "front.png"), pngUpload(t, "side.png")},
	})
	require.NoError(t, err)

	items := repo.NewItemRepo(f.db)
	require.NoError(t, items.AddImage(f.ctx, item.ID, "uploads/"+category.FolderName+"/gone.jpg", false))

	images, err := f.catalog.GetItemImages(f.ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.True(t, images[0].IsPrimary)

	listed, err := f.catalog.ListItems(f.ctx, category.ID, "RUB")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Len(t, listed[0].Images, 2)
	for _, path := range listed[0].Images {
		assert.True(t, f.files.Exists(path), path)
	}
	assert.Equal(t, images[0].ImagePath, listed[0].PrimaryImage())
	assert.Equal(t, listed[0].Images[0]+","+listed[0].Images[1], listed[0].ImagePaths())
	assert.Equal(t, 100.0, listed[0].Price)

	valid, err := f.catalog.ValidImages(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, listed[0].Images, valid)
}

func TestListItemsPriceMissingInCurrency(t *testing.T) {
	f := newFixture(t)
	category, item := f.seedItem(t, "Shoes", "Sneaker", "100")

	listed, err := f.catalog.ListItems(f.ctx, category.ID, "BYN")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 0.0, listed[0].Price)
	assert.Empty(t, listed[0].Images)

	price, err := f.catalog.GetItemPrice(f.ctx, item.ID, "BYN")
	require.NoError(t, err)
	assert.Equal(t, 0.0, price)
}

func TestListItemsOrderedByName(t *testing.T) {
	f := newFixture(t)
	category, _ := f.seedItem(t, "Shoes", "Sneaker", "100")
	f.seedItem(t, "Shoes", "Boot", "200")

	listed, err := f.catalog.ListItems(f.ctx, category.ID, "RUB")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "Boot", listed[0].Name)
	assert.Equal(t, 200.0, listed[0].Price)
	assert.Equal(t, []string{"40", "41", "42"}, listed[0].SizeList())
}

func TestGetItemPrices(t *testing.T) {
	f := newFixture(t)
	category, err := f.admin.CreateCategory(f.ctx, "Shoes", nil)
	require.NoError(t, err)
	item, err := f.admin.CreateItem(f.ctx, ItemInput{
		CategoryID: category.ID,
		Name:       "Sneaker",
		Sizes:      "42",
		Prices: map[int64]string{
			f.currencyID(t, "RUB"): "100",
			f.currencyID(t, "BYN"): "3.7",
		},
	})
	require.NoError(t, err)

	prices, err := f.catalog.GetItemPrices(f.ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "BYN", prices[0].CurrencyName)
	assert.Equal(t, "Br", prices[0].CurrencySymbol)
	assert.Equal(t, 3.7, prices[0].Price)
	assert.Equal(t, "RUB", prices[1].CurrencyName)
}

func TestListCurrenciesFallsBackToAll(t *testing.T) {
	f := newFixture(t)
	currencies := repo.NewCurrencyRepo(f.db)

	active, err := f.catalog.ListCurrencies(f.ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "BYN", active[0].Name)

	require.NoError(t, currencies.SetActive(f.ctx, f.currencyID(t, "BYN"), false))
	active, err = f.catalog.ListCurrencies(f.ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "RUB", active[0].Name)

	require.NoError(t, currencies.SetActive(f.ctx, f.currencyID(t, "RUB"), false))
	all, err := f.catalog.ListCurrencies(f.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
