package service

import (
	"context"
	"fmt"
	"log/slog"

	"clothshop/internal/db"
	"clothshop/internal/models"
	"clothshop/internal/repo"
)

// FileChecker reports whether a recorded image path is backed by a file.
type FileChecker interface {
	Exists(path string) bool
}

type CatalogService struct {
	categories *repo.CategoryRepo
	items      *repo.ItemRepo
	currencies *repo.CurrencyRepo
	files      FileChecker
}

func NewCatalogService(d *db.DB, files FileChecker) *CatalogService {
	return &CatalogService{
		categories: repo.NewCategoryRepo(d),
		items:      repo.NewItemRepo(d),
		currencies: repo.NewCurrencyRepo(d),
		files:      files,
	}
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.categories.AllCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	category, err := s.categories.CategoryByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "category", id)
	}
	return category, nil
}

// ListItems returns the category's items priced in currencyCode. Only images
// whose file exists are included; the rest are logged and dropped.
func (s *CatalogService) ListItems(ctx context.Context, categoryID int64, currencyCode string) ([]models.ItemListing, error) {
	items, err := s.items.ItemsByCategory(ctx, categoryID, currencyCode)
	if err != nil {
		return nil, fmt.Errorf("list items of category %d: %w", categoryID, err)
	}
	if len(items) == 0 {
		return items, nil
	}

	images, err := s.items.ImagesByCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list images of category %d: %w", categoryID, err)
	}

	byItem := make(map[int64][]string, len(items))
	for _, img := range images {
		if !s.files.Exists(img.ImagePath) {
			slog.Warn("Image file is missing", "item_id", img.ItemID, "path", img.ImagePath)
			continue
		}
		byItem[img.ItemID] = append(byItem[img.ItemID], img.ImagePath)
	}
	for i := range items {
		items[i].Images = byItem[items[i].ID]
	}
	return items, nil
}

func (s *CatalogService) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	item, err := s.items.ItemByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "item", id)
	}
	return item, nil
}

// GetItemImages lists every recorded image, primary first.
func (s *CatalogService) GetItemImages(ctx context.Context, id int64) ([]models.ItemImage, error) {
	images, err := s.items.ItemImages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list images of item %d: %w", id, err)
	}
	return images, nil
}

// ValidImages is GetItemImages reduced to paths that exist on disk.
func (s *CatalogService) ValidImages(ctx context.Context, id int64) ([]string, error) {
	images, err := s.GetItemImages(ctx, id)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, img := range images {
		if !s.files.Exists(img.ImagePath) {
			slog.Warn("Image file is missing", "item_id", id, "path", img.ImagePath)
			continue
		}
		paths = append(paths, img.ImagePath)
	}
	return paths, nil
}

func (s *CatalogService) GetItemPrices(ctx context.Context, id int64) ([]models.ItemPrice, error) {
	prices, err := s.items.ItemPrices(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list prices of item %d: %w", id, err)
	}
	return prices, nil
}

// GetItemPrice is 0 when the item has no price in that currency.
func (s *CatalogService) GetItemPrice(ctx context.Context, id int64, currencyCode string) (float64, error) {
	price, err := s.items.ItemPrice(ctx, id, currencyCode)
	if err != nil {
		return 0, fmt.Errorf("price of item %d in %s: %w", id, currencyCode, err)
	}
	return price, nil
}

// ListCurrencies returns active currencies, or all of them when none is
// marked active.
func (s *CatalogService) ListCurrencies(ctx context.Context) ([]models.Currency, error) {
	currencies, err := s.currencies.ActiveCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	if len(currencies) > 0 {
		return currencies, nil
	}

	currencies, err = s.currencies.AllCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	return currencies, nil
}
