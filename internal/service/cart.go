package service

import (
	"context"
	"fmt"
	"strings"

	"clothshop/internal/db"
	"clothshop/internal/models"
	"clothshop/internal/repo"
)

type CartService struct {
	items *repo.ItemRepo
	carts *repo.CartRepo
}

func NewCartService(d *db.DB) *CartService {
	return &CartService{items: repo.NewItemRepo(d), carts: repo.NewCartRepo(d)}
}

// AddToCart appends a line. Repeated adds make repeated lines and stock is
// not checked.
func (s *CartService) AddToCart(ctx context.Context, userID, itemID int64, size string) error {
	size = strings.TrimSpace(size)
	if size == "" {
		return validationf("size is required")
	}
	if _, err := s.items.ItemByID(ctx, itemID); err != nil {
		return notFound(err, "item", itemID)
	}
	if err := s.carts.AddLine(ctx, userID, itemID, size); err != nil {
		return fmt.Errorf("add item %d to cart: %w", itemID, err)
	}
	return nil
}

// ListCart returns the user's lines, oldest first.
func (s *CartService) ListCart(ctx context.Context, userID int64) ([]models.CartLine, error) {
	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	return lines, nil
}

// RemoveFromCart drops the oldest matching line and reports whether one
// was found.
func (s *CartService) RemoveFromCart(ctx context.Context, userID, itemID int64, size string) (bool, error) {
	removed, err := s.carts.RemoveLine(ctx, userID, itemID, size)
	if err != nil {
		return false, fmt.Errorf("remove item %d from cart: %w", itemID, err)
	}
	return removed, nil
}

func (s *CartService) ClearCart(ctx context.Context, userID int64) (int64, error) {
	n, err := s.carts.Clear(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return n, nil
}
