// Package ledger is the durable holder of wallets and transaction records.
//
// Mutations happen inside a unit of work (Store.WithinTx). Inside it, wallets
// are acquired with FindWallet or GetOrCreateWallet and changed only through
// ApplyDelta, a compare-and-swap on the wallet version. Everything written in
// one unit of work commits together or not at all.
package ledger

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/ruralpay/wallet/internal/models"
	"github.com/ruralpay/wallet/internal/money"
)

var (
	// ErrConcurrencyConflict means another writer changed a wallet first; the
	// whole unit of work was rolled back and may be retried.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrNegativeBalance     = errors.New("balance would become negative")
	// ErrBalanceLimit means a credit would push a balance past money.MaxAmount.
	ErrBalanceLimit        = errors.New("balance limit exceeded")
	ErrInvalidRecord       = errors.New("invalid transaction record")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotFlagged          = errors.New("transaction is not flagged")
)

// Store is the ledger as seen by the engine and the read-only reporting layer.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetWallet(ctx context.Context, userID, currency string) (*models.Wallet, error)
	ListWallets(ctx context.Context, userID string) ([]models.Wallet, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	QueryTransactions(ctx context.Context, filter Filter) iter.Seq2[models.Transaction, error]

	// UpdateReview sets the review fields of a flagged transaction.
	UpdateReview(ctx context.Context, id string, status models.ReviewStatus, comment string) (*models.Transaction, error)

	TotalsByCurrency(ctx context.Context) ([]models.CurrencyTotal, error)
	BalancesByUser(ctx context.Context) ([]models.UserBalance, error)
}

// Tx is one unit of work.
type Tx interface {
	// FindWallet acquires an existing wallet; ErrWalletNotFound if absent.
	FindWallet(ctx context.Context, userID, currency string) (*models.Wallet, error)
	// GetOrCreateWallet acquires the wallet, creating it with a zero balance if absent.
	GetOrCreateWallet(ctx context.Context, userID, currency string) (*models.Wallet, error)
	// ApplyDelta changes the balance by delta if the wallet is still at expectedVersion.
	ApplyDelta(ctx context.Context, walletID string, delta money.Amount, expectedVersion int64) (*models.Wallet, error)
	// AppendTransaction stores a new record and returns its ID.
	AppendTransaction(ctx context.Context, txn *models.Transaction) (string, error)
	// RecentTransfers returns the user's transfer records in [from, to).
	RecentTransfers(ctx context.Context, userID, currency string, from, to time.Time) ([]models.Transaction, error)
}

// Filter selects transactions for history and reporting queries.
// Zero values mean "any".
type Filter struct {
	UserID      string
	Kind        models.TransactionKind
	Currency    string
	FlaggedOnly bool
	Since       time.Time
	Until       time.Time
	Limit       int
	// Newest orders results by timestamp descending.
	Newest bool
}

func (f Filter) matches(t *models.Transaction) bool {
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Currency != "" && t.Currency != f.Currency {
		return false
	}
	if f.FlaggedOnly && !t.Flagged {
		return false
	}
	if !f.Since.IsZero() && t.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !t.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Collect drains a transaction sequence into a slice.
func Collect(seq iter.Seq2[models.Transaction, error]) ([]models.Transaction, error) {
	var out []models.Transaction
	for txn, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, nil
}
