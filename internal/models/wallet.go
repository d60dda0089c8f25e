package models

import (
	"time"

	"github.com/ruralpay/wallet/internal/money"
)

// Wallet holds one user's balance in one currency.
type Wallet struct {
	ID        string       `json:"id" db:"id"`
	UserID    string       `json:"user_id" db:"user_id"`
	Currency  string       `json:"currency" db:"currency"`
	Balance   money.Amount `json:"balance" db:"balance"` // minor units
	Version   int64        `json:"-" db:"version"`       // for optimistic locking
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// WalletKey identifies a wallet by owner and currency. Keys are totally
// ordered so multi-wallet operations can acquire them deterministically.
type WalletKey struct {
	UserID   string
	Currency string
}

func (k WalletKey) Less(other WalletKey) bool {
	if k.UserID != other.UserID {
		return k.UserID < other.UserID
	}
	return k.Currency < other.Currency
}

// CurrencyTotal is a system-wide balance for one currency.
type CurrencyTotal struct {
	Currency string       `json:"currency"`
	Total    money.Amount `json:"total"`
}

// UserBalance is a user's balance summed across all currencies.
type UserBalance struct {
	UserID string       `json:"user_id"`
	Total  money.Amount `json:"total_balance"`
}
