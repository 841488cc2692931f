package models

import (
	"strings"
	"time"
)

type Item struct {
	ID            int64     `json:"id"`
	CategoryID    int64     `json:"category_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Sizes         string    `json:"sizes"` // comma-joined, e.g. "S,M,L"
	StockQuantity int       `json:"stock_quantity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MaxSizeBytes keeps remove_<id>_<size> within Telegram's 64-byte callback
// data for any item id.
const MaxSizeBytes = 32

// SizeList splits Sizes into trimmed, non-empty tokens.
func (i Item) SizeList() []string {
	return SplitSizes(i.Sizes)
}

func SplitSizes(raw string) []string {
	var sizes []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sizes = append(sizes, s)
		}
	}
	return sizes
}

// JoinSizes normalises user input into the stored form.
func JoinSizes(raw string) string {
	return strings.Join(SplitSizes(raw), ",")
}

type ItemImage struct {
	ID        int64  `json:"id"`
	ItemID    int64  `json:"item_id"`
	ImagePath string `json:"image_path"`
	IsPrimary bool   `json:"is_primary"`
}

type ItemPrice struct {
	ID             int64   `json:"id"`
	ItemID         int64   `json:"item_id"`
	CurrencyID     int64   `json:"currency_id"`
	Price          float64 `json:"price"`
	CurrencyName   string  `json:"currency_name"`
	CurrencySymbol string  `json:"symbol"`
}

// ItemListing is an item as shown in a category view: valid images first
// (primary first) and the price in the requested currency.
type ItemListing struct {
	Item
	Images []string `json:"images"`
	Price  float64  `json:"price"`
}

func (l ItemListing) ImagePaths() string {
	return strings.Join(l.Images, ",")
}

func (l ItemListing) PrimaryImage() string {
	if len(l.Images) == 0 {
		return ""
	}
	return l.Images[0]
}
