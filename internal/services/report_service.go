package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ruralpay/wallet/internal/identity"
	"github.com/ruralpay/wallet/internal/ledger"
	"github.com/ruralpay/wallet/internal/models"
	"github.com/ruralpay/wallet/internal/money"
)

const (
	DefaultHistoryLimit  = 50
	DefaultFlaggedLimit  = 100
	DefaultTopUsersLimit = 10

	unknownUser = "Unknown"
)

type WalletBalance struct {
	Currency string       `json:"currency" example:"INR"`
	Balance  money.Amount `json:"balance" swaggertype:"number" example:"1500.50"`
}

type WalletSummary struct {
	Username string          `json:"username" example:"alice"`
	Wallets  []WalletBalance `json:"wallets"`
}

type HistoryEntry struct {
	TransactionID string                 `json:"txn_id"`
	Type          models.TransactionKind `json:"type" example:"transfer"`
	Amount        money.Amount           `json:"amount" swaggertype:"number" example:"250.00"`
	Currency      string                 `json:"currency" example:"INR"`
	Timestamp     time.Time              `json:"timestamp"`
	To            string                 `json:"to,omitempty" example:"bob"`
	Flagged       bool                   `json:"flagged"`
}

type FlaggedTransaction struct {
	TransactionID string                 `json:"txn_id"`
	User          string                 `json:"user" example:"alice"`
	Type          models.TransactionKind `json:"type" example:"withdraw"`
	Amount        money.Amount           `json:"amount" swaggertype:"number" example:"60000.00"`
	Currency      string                 `json:"currency" example:"INR"`
	Timestamp     time.Time              `json:"timestamp"`
	TargetUser    string                 `json:"target_user,omitempty"`
	ReviewStatus  models.ReviewStatus    `json:"review_status" example:"pending"`
	ReviewComment string                 `json:"review_comment"`
}

type TopUser struct {
	UserID       string       `json:"user_id"`
	Username     string       `json:"username" example:"alice"`
	TotalBalance money.Amount `json:"total_balance" swaggertype:"number" example:"90000.00"`
}

// ReportService answers read-only balance and history queries.
type ReportService struct {
	store ledger.Store
	users identity.Directory
}

func NewReportService(store ledger.Store, users identity.Directory) *ReportService {
	return &ReportService{store: store, users: users}
}

// Summary lists the user's balance in every currency they hold.
func (s *ReportService) Summary(ctx context.Context, userID string) (*WalletSummary, error) {
	user, err := s.users.ResolveUser(ctx, userID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return nil, translate(err)
	}

	wallets, err := s.store.ListWallets(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}

	summary := &WalletSummary{Username: user.Username, Wallets: make([]WalletBalance, 0, len(wallets))}
	for _, w := range wallets {
		summary.Wallets = append(summary.Wallets, WalletBalance{Currency: w.Currency, Balance: w.Balance})
	}
	return summary, nil
}

// History returns the user's own records, newest first.
func (s *ReportService) History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	names := s.nameCache()
	history := []HistoryEntry{}
	for txn, err := range s.store.QueryTransactions(ctx, ledger.Filter{UserID: userID, Newest: true, Limit: limit}) {
		if err != nil {
			return nil, translate(err)
		}
		entry := HistoryEntry{
			TransactionID: txn.ID,
			Type:          txn.Kind,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			Timestamp:     txn.Timestamp,
			Flagged:       txn.Flagged,
		}
		if txn.Kind == models.KindTransfer {
			entry.To = names(ctx, txn.TargetUserID)
		}
		history = append(history, entry)
	}
	return history, nil
}

// Flagged returns every flagged record, newest first, with its review state.
func (s *ReportService) Flagged(ctx context.Context, limit int) ([]FlaggedTransaction, error) {
	if limit <= 0 {
		limit = DefaultFlaggedLimit
	}

	names := s.nameCache()
	flagged := []FlaggedTransaction{}
	for txn, err := range s.store.QueryTransactions(ctx, ledger.Filter{FlaggedOnly: true, Newest: true, Limit: limit}) {
		if err != nil {
			return nil, translate(err)
		}
		item := FlaggedTransaction{
			TransactionID: txn.ID,
			User:          names(ctx, txn.UserID),
			Type:          txn.Kind,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			Timestamp:     txn.Timestamp,
			ReviewStatus:  txn.ReviewStatus,
			ReviewComment: txn.ReviewComment,
		}
		if txn.TargetUserID != "" {
			item.TargetUser = names(ctx, txn.TargetUserID)
		}
		flagged = append(flagged, item)
	}
	return flagged, nil
}

// TopUsers ranks users by their balance summed over all currencies.
func (s *ReportService) TopUsers(ctx context.Context, limit int) ([]TopUser, error) {
	if limit <= 0 {
		limit = DefaultTopUsersLimit
	}

	balances, err := s.store.BalancesByUser(ctx)
	if err != nil {
		return nil, translate(err)
	}
	if len(balances) > limit {
		balances = balances[:limit]
	}

	names := s.nameCache()
	top := make([]TopUser, 0, len(balances))
	for _, b := range balances {
		top = append(top, TopUser{UserID: b.UserID, Username: names(ctx, b.UserID), TotalBalance: b.Total})
	}
	return top, nil
}

// TotalsByCurrency maps each currency to the sum of all balances held in it.
func (s *ReportService) TotalsByCurrency(ctx context.Context) (map[string]money.Amount, error) {
	totals, err := s.store.TotalsByCurrency(ctx)
	if err != nil {
		return nil, translate(err)
	}
	out := make(map[string]money.Amount, len(totals))
	for _, t := range totals {
		out[t.Currency] = t.Total
	}
	return out, nil
}

// nameCache resolves user IDs to usernames, remembering each answer for the
// lifetime of one report.
func (s *ReportService) nameCache() func(ctx context.Context, userID string) string {
	seen := make(map[string]string)
	return func(ctx context.Context, userID string) string {
		if name, ok := seen[userID]; ok {
			return name
		}
		name := unknownUser
		if u, err := s.users.ResolveUser(ctx, userID); err == nil {
			name = u.Username
		}
		seen[userID] = name
		return name
	}
}
