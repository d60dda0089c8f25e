package models

import (
	"time"

	"github.com/ruralpay/wallet/internal/money"
)

type TransactionKind string

const (
	KindDeposit  TransactionKind = "deposit"
	KindWithdraw TransactionKind = "withdraw"
	KindTransfer TransactionKind = "transfer"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindTransfer:
		return true
	}
	return false
}

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewCleared  ReviewStatus = "cleared"
	ReviewRejected ReviewStatus = "rejected"
)

// Transaction is the immutable record of a balance-affecting event.
// Only the review fields change after creation, and only while Flagged is set.
type Transaction struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	Kind          TransactionKind `json:"type" db:"kind"`
	Amount        money.Amount    `json:"amount" db:"amount"` // minor units
	Currency      string          `json:"currency" db:"currency"`
	TargetUserID  string          `json:"target_user_id,omitempty" db:"target_user_id"`
	Timestamp     time.Time       `json:"timestamp" db:"created_at"`
	Flagged       bool            `json:"is_flagged" db:"flagged"`
	ReviewStatus  ReviewStatus    `json:"review_status" db:"review_status"`
	ReviewComment string          `json:"review_comment" db:"review_comment"`
}
