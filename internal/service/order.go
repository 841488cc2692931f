package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"clothshop/internal/auth"
	"clothshop/internal/db"
	"clothshop/internal/models"
	"clothshop/internal/repo"
)

// OrderNotifier delivers order events. Errors are logged by the caller and
// never undo the order change.
type OrderNotifier interface {
	OrderCreated(ctx context.Context, buyer models.Buyer, order *models.Order) error
	OrderStatusChanged(ctx context.Context, order *models.Order) error
}

// Preview is an unsaved checkout snapshot. Its prices are fixed at checkout
// time and are what ConfirmOrder persists.
type Preview struct {
	UserID       int64
	Lines        []models.OrderLine
	Total        decimal.Decimal
	CurrencyCode string
	Timestamp    time.Time
}

func (p *Preview) Data() models.OrderData {
	return models.OrderData{Items: p.Lines, UserID: p.UserID, Timestamp: p.Timestamp}
}

type OrderService struct {
	db       *db.DB
	items    *repo.ItemRepo
	carts    *repo.CartRepo
	orders   *repo.OrderRepo
	policy   *auth.Policy
	notifier OrderNotifier
	now      func() time.Time
}

// NewOrderService accepts a nil notifier, in which case events are dropped.
func NewOrderService(d *db.DB, policy *auth.Policy, notifier OrderNotifier) *OrderService {
	return &OrderService{
		db:       d,
		items:    repo.NewItemRepo(d),
		carts:    repo.NewCartRepo(d),
		orders:   repo.NewOrderRepo(d),
		policy:   policy,
		notifier: notifier,
		now:      time.Now,
	}
}

// Checkout prices the user's cart in currencyCode. The total is the sum of
// line prices; quantity is carried on each line but not multiplied in.
func (s *OrderService) Checkout(ctx context.Context, userID int64, currencyCode string) (*Preview, error) {
	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	preview := &Preview{
		UserID:       userID,
		Lines:        make([]models.OrderLine, 0, len(lines)),
		Total:        decimal.Zero,
		CurrencyCode: currencyCode,
		Timestamp:    s.now().UTC(),
	}
	for _, line := range lines {
		price, err := s.items.ItemPrice(ctx, line.ItemID, currencyCode)
		if err != nil {
			return nil, fmt.Errorf("checkout: price of item %d: %w", line.ItemID, err)
		}
		p := decimal.NewFromFloat(price)
		preview.Lines = append(preview.Lines, models.OrderLine{
			ItemID:   line.ItemID,
			Name:     line.ItemName,
			Size:     line.Size,
			Quantity: line.Quantity,
			Price:    p,
		})
		preview.Total = preview.Total.Add(p)
	}
	return preview, nil
}

// ConfirmOrder stores the preview as a pending order and empties the cart in
// one transaction, then announces the order.
func (s *OrderService) ConfirmOrder(ctx context.Context, buyer models.Buyer, preview *Preview) (*models.Order, error) {
	if preview == nil || len(preview.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if buyer.ID != preview.UserID {
		return nil, validationf("checkout belongs to user %d", preview.UserID)
	}

	order := &models.Order{
		UserID:       preview.UserID,
		Data:         preview.Data(),
		TotalPrice:   preview.Total.InexactFloat64(),
		CurrencyCode: preview.CurrencyCode,
		Status:       models.OrderPending,
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.orders.Tx(tx).CreateOrder(ctx, order); err != nil {
			return err
		}
		_, err := s.carts.Tx(tx).Clear(ctx, preview.UserID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("confirm order: %w", err)
	}

	if saved, err := s.orders.OrderByID(ctx, order.ID); err == nil {
		order = saved
	} else {
		order.CreatedAt = s.now()
	}
	slog.Info("Order created", "order_id", order.ID, "user_id", order.UserID,
		"total", order.TotalPrice, "currency", order.CurrencyCode)

	if s.notifier != nil {
		if err := s.notifier.OrderCreated(ctx, buyer, order); err != nil {
			slog.Error("Order notification failed", "order_id", order.ID, "error", err)
		}
	}
	return order, nil
}

// SetOrderStatus moves a pending order to accepted or rejected and tells the
// buyer about it.
func (s *OrderService) SetOrderStatus(ctx context.Context, actor auth.Actor, orderID int64, status models.OrderStatus) (*models.Order, error) {
	if err := s.policy.CanModerate(actor); err != nil {
		return nil, fmt.Errorf("set order %d status: %w", orderID, err)
	}
	if status != models.OrderAccepted && status != models.OrderRejected {
		return nil, validationf("unknown order status %q", status)
	}

	order, err := s.orders.OrderByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}
	if order.Status.Terminal() {
		return order, fmt.Errorf("%w: order %d is already %s", ErrConflict, orderID, order.Status)
	}

	ok, err := s.orders.TransitionStatus(ctx, orderID, models.OrderPending, status)
	if err != nil {
		return nil, fmt.Errorf("set order %d status: %w", orderID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: order %d changed concurrently", ErrConflict, orderID)
	}
	order.Status = status
	slog.Info("Order status changed", "order_id", orderID, "status", status, "actor", actor.UserID)

	if s.notifier != nil {
		if err := s.notifier.OrderStatusChanged(ctx, order); err != nil {
			slog.Error("Status notification failed", "order_id", orderID, "error", err)
		}
	}
	return order, nil
}

// ListOrders returns one page of orders, newest first, and the total count.
func (s *OrderService) ListOrders(ctx context.Context, limit, offset int) ([]models.Order, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	orders, err := s.orders.PaginateOrders(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	total, err := s.orders.CountOrders(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	return orders, total, nil
}

func (s *OrderService) UserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	orders, err := s.orders.UserOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders of user %d: %w", userID, err)
	}
	return orders, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := s.orders.OrderByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return order, nil
}
