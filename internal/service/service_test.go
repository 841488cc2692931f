package service

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"clothshop/internal/auth"
	"clothshop/internal/db"
	"clothshop/internal/media"
	"clothshop/internal/models"
	"clothshop/internal/repo"
)

const (
	moderatorID = int64(100)
	buyerID     = int64(555)
	adminChatID = int64(-1001)
)

type recordingNotifier struct {
	mu       sync.Mutex
	err      error
	created  []int64
	statuses []models.OrderStatus
	banned   []int64
	unbanned []int64
}

func (n *recordingNotifier) OrderCreated(_ context.Context, _ models.Buyer, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, order.ID)
	return n.err
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, order.Status)
	return n.err
}

func (n *recordingNotifier) UserBanned(_ context.Context, userID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.banned = append(n.banned, userID)
	return n.err
}

func (n *recordingNotifier) UserUnbanned(_ context.Context, userID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unbanned = append(n.unbanned, userID)
	return n.err
}

type fixture struct {
	ctx        context.Context
	db         *db.DB
	files      *media.Store
	notifier   *recordingNotifier
	catalog    *CatalogService
	admin      *AdminService
	carts      *CartService
	orders     *OrderService
	currency   *CurrencyService
	moderation *ModerationService
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.OpenSQLite(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	_, err = d.Migrate(context.Background())
	require.NoError(t, err)
	return d
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := newTestDB(t)
	files := media.NewStore(t.TempDir())
	policy := auth.NewPolicy([]int64{moderatorID}, adminChatID)
	notifier := &recordingNotifier{}

	return &fixture{
		ctx:        context.Background(),
		db:         d,
		files:      files,
		notifier:   notifier,
		catalog:    NewCatalogService(d, files),
		admin:      NewAdminService(d, files),
		carts:      NewCartService(d),
		orders:     NewOrderService(d, policy, notifier),
		currency:   NewCurrencyService(d, "BYN", 0.037),
		moderation: NewModerationService(d, policy, notifier),
	}
}

func (f *fixture) currencyID(t *testing.T, code string) int64 {
	t.Helper()
	c, err := repo.NewCurrencyRepo(f.db).CurrencyByName(f.ctx, code)
	require.NoError(t, err)
	return c.ID
}

// seedItem creates a category (when missing) with one item priced in RUB.
func (f *fixture) seedItem(t *testing.T, categoryName, itemName, rubPrice string) (*models.Category, *models.Item) {
	t.Helper()
	category, err := repo.NewCategoryRepo(f.db).CategoryByName(f.ctx, categoryName)
	if err != nil {
		category, err = f.admin.CreateCategory(f.ctx, categoryName, nil)
		require.NoError(t, err)
	}

	item, err := f.admin.CreateItem(f.ctx, ItemInput{
		CategoryID:    category.ID,
		Name:          itemName,
		Sizes:         "40, 41,42",
		StockQuantity: 5,
		Prices:        map[int64]string{f.currencyID(t, "RUB"): rubPrice},
	})
	require.NoError(t, err)
	return category, item
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRowContext(f.ctx, f.db.Rebind(query), args...).Scan(&n))
	return n
}

func pngUpload(t *testing.T, name string) Upload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return Upload{Filename: name, Body: &buf}
}
