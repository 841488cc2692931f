package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clothshop/internal/auth"
	"clothshop/internal/models"
	"clothshop/internal/repo"
)

var buyer = models.Buyer{ID: buyerID, Username: "buyer", FullName: "Test Buyer"}

func TestCheckoutAndConfirmScenario(t *testing.T) {
	f := newFixture(t)
	_, item := f.seedItem(t, "Shoes", "Sneaker", "100")
	require.NoError(t, f.carts.AddToCart(f.ctx, buyerID, item.ID, "42"))

	preview, err := f.orders.Checkout(f.ctx, buyerID, "RUB")
	require.NoError(t, err)
	assert.Equal(t, "100.00", preview.Total.StringFixed(2))
	require.Len(t, preview.Lines, 1)
	assert.Equal(t, "Sneaker", preview.Lines[0].Name)
	assert.Equal(t, "42", preview.Lines[0].Size)

	order, err := f.orders.ConfirmOrder(f.ctx, buyer, preview)
	require.NoError(t, err)
	assert.Equal(t, 100.0, order.TotalPrice)
	assert.Equal(t, "RUB", order.CurrencyCode)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.False(t, order.CreatedAt.IsZero())

	lines, err := f.carts.ListCart(f.ctx, buyerID)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM orders WHERE user_id = ?`, buyerID))
	assert.Equal(t, []int64{order.ID}, f.notifier.created)
}

func TestConfirmKeepsCheckoutPrices(t *testing.T) {
	f := newFixture(t)
	_, item := f.seedItem(t, "Shoes", "Sneaker", "100")
	require.NoError(t, f.carts.AddToCart(f.ctx, buyerID, item.ID, "42"))

	preview, err := f.orders.Checkout(f.ctx, buyerID, "RUB")
	require.NoError(t, err)

	items := repo.NewItemRepo(f.db)
	require.NoError(t, items.UpsertPrice(f.ctx, item.ID, f.currencyID(t, "RUB"), 150))

	order, err := f.orders.ConfirmOrder(f.ctx, buyer, preview)
	require.NoError(t, err)
	assert.Equal(t, 100.0, order.TotalPrice)

	require.NoError(t, items.UpsertPrice(f.ctx, item.ID, f.currencyID(t, "RUB"), 300))
	stored, err := f.orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.TotalPrice)
	require.Len(t, stored.Data.Items, 1)
	assert.True(t, decimal.NewFromInt(100).Equal(stored.Data.Items[0].Price))
	assert.Equal(t, buyerID, stored.Data.UserID)
}

func TestCheckoutSumsLinePrices(t *testing.T) {
	f := newFixture(t)
	_, sneaker := f.seedItem(t, "Shoes", "Sneaker", "100")
	_, boot := f.seedItem(t, "Shoes", "Boot", "49.99")
	require.NoError(t, f.carts.AddToCart(f.ctx, buyerID, sneaker.ID, "42"))
	require.NoError(t, f.carts.AddToCart(f.ctx, buyerID, sneaker.ID, "42"))
	require.NoError(t, f.carts.AddToCart(f.ctx, buyerID, boot.ID, "41"))

	preview, err := f.orders.Checkout(f.ctx, buyerID, "RUB")
	require.NoError(t, err)
	assert.Equal(t, "249.99", preview.Total.StringFixed(2))
	assert.Len(t, preview.Lines, 3)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.Checkout(f.ctx, buyerID, "RUB")
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.ConfirmOrder(f.ctx, buyer, nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestConfirmRejectsForeignPreview(t *testing.T) {
	f := newFixture(t)
	_, item := f.seedItem(t, "Shoes", "Sneaker", "100")
	require.NoError(t, f.carts.AddToCart(f.ctx, buyerID, item.ID, "42"))
	preview, err := f.orders.Checkout(f.ctx, buyerID, "RUB")
	require.NoError(t, err)

	_, err = f.orders.ConfirmOrder(f.ctx, models.Buyer{ID: buyerID + 1}, preview)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM orders`))
}

func TestConfirmIsAtomic(t *testing.T) {
	f := newFixture(t)
	_, item := f.seedItem(t, "Shoes", "Sneaker", "100")
	require.NoError(t, f.carts.AddToCart(f.ctx, buyerID, item.ID, "42"))
	preview, err := f.orders.Checkout(f.ctx, buyerID, "RUB")
	require.NoError(t, err)

	// The cart clear inside the transaction fails after the order insert.
	_, err = f.db.ExecContext(f.ctx, `DROP TABLE carts`)
	require.NoError(t, err)

	_, err = f.orders.ConfirmOrder(f.ctx, buyer, preview)
	require.Error(t, err)
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM orders`))
	assert.Empty(t, f.notifier.created)
}

func TestConfirmSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("telegram is down")
	_, item := f.seedItem(t, "Shoes", "Sneaker", "100")
	require.NoError(t, f.carts.AddToCart(f.ctx, buyerID, item.ID, "42"))
	preview, err := f.orders.Checkout(f.ctx, buyerID, "RUB")
	require.NoError(t, err)

	order, err := f.orders.ConfirmOrder(f.ctx, buyer, preview)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM orders WHERE id = ?`, order.ID))
}

func placeOrder(t *testing.T, f *fixture) *models.Order {
	t.Helper()
	_, item := f.seedItem(t, "Shoes", "Sneaker", "100")
	require.NoError(t, f.carts.AddToCart(f.ctx, buyerID, item.ID, "42"))
	preview, err := f.orders.Checkout(f.ctx, buyerID, "RUB")
	require.NoError(t, err)
	order, err := f.orders.ConfirmOrder(f.ctx, buyer, preview)
	require.NoError(t, err)
	return order
}

func TestSetOrderStatus(t *testing.T) {
	f := newFixture(t)
	order := placeOrder(t, f)
	moderator := auth.Actor{UserID: moderatorID, ChatID: adminChatID}

	_, err := f.orders.SetOrderStatus(f.ctx, auth.Actor{UserID: buyerID}, order.ID, models.OrderAccepted)
	assert.ErrorIs(t, err, ErrForbidden)
	stored, err := f.orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, stored.Status)

	_, err = f.orders.SetOrderStatus(f.ctx, moderator, order.ID, models.OrderPending)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.SetOrderStatus(f.ctx, moderator, order.ID+1, models.OrderAccepted)
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := f.orders.SetOrderStatus(f.ctx, moderator, order.ID, models.OrderAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.OrderAccepted, updated.Status)
	assert.Equal(t, []models.OrderStatus{models.OrderAccepted}, f.notifier.statuses)

	_, err = f.orders.SetOrderStatus(f.ctx, moderator, order.ID, models.OrderRejected)
	assert.ErrorIs(t, err, ErrConflict)
	stored, err = f.orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderAccepted, stored.Status)
}

func TestSetOrderStatusFromWeb(t *testing.T) {
	f := newFixture(t)
	order := placeOrder(t, f)

	updated, err := f.orders.SetOrderStatus(f.ctx, auth.Actor{Web: true}, order.ID, models.OrderRejected)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRejected, updated.Status)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	first := placeOrder(t, f)
	second := placeOrder(t, f)

	page, total, err := f.orders.ListOrders(f.ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)

	page, _, err = f.orders.ListOrders(f.ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	mine, err := f.orders.UserOrders(f.ctx, buyerID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = f.orders.GetOrder(f.ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
