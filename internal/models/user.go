package models

import "time"

type UserPreference struct {
	UserID     int64 `json:"user_id"`
	CurrencyID int64 `json:"currency_id"`
}

type BannedUser struct {
	UserID   int64     `json:"user_id"`
	BannedAt time.Time `json:"banned_at"`
}

// Buyer is the Telegram identity attached to an order notification.
type Buyer struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}
