package models

type Currency struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"` // ISO-like code, e.g. "RUB"
	Rate     float64 `json:"rate"`
	Symbol   string  `json:"symbol"`
	IsActive bool    `json:"is_active"`
}
