// Package fraud holds the synchronous fraud rules run by the wallet engine.
// Rules are pure: they read only their arguments and never touch storage.
package fraud

import (
	"time"

	"github.com/ruralpay/wallet/internal/models"
	"github.com/ruralpay/wallet/internal/money"
)

type Rule string

const (
	RuleNone              Rule = ""
	RuleLargeWithdrawal   Rule = "large_withdrawal"
	RuleFrequentTransfers Rule = "frequent_transfers"
)

const (
	DefaultLargeWithdrawalThreshold = money.Amount(50000 * 100)
	DefaultTransferWindow           = time.Minute
	DefaultTransferBurstLimit       = 5
)

type Config struct {
	// LargeWithdrawalThreshold applies to every currency as-is.
	LargeWithdrawalThreshold money.Amount
	TransferWindow           time.Duration
	TransferBurstLimit       int
}

func DefaultConfig() Config {
	return Config{
		LargeWithdrawalThreshold: DefaultLargeWithdrawalThreshold,
		TransferWindow:           DefaultTransferWindow,
		TransferBurstLimit:       DefaultTransferBurstLimit,
	}
}

// Decision is the outcome of evaluating one candidate transaction.
type Decision struct {
	Flagged bool
	Rule    Rule
}

type Evaluator struct {
	cfg Config
}

func NewEvaluator(cfg Config) *Evaluator {
	def := DefaultConfig()
	if cfg.LargeWithdrawalThreshold <= 0 {
		cfg.LargeWithdrawalThreshold = def.LargeWithdrawalThreshold
	}
	if cfg.TransferWindow <= 0 {
		cfg.TransferWindow = def.TransferWindow
	}
	if cfg.TransferBurstLimit <= 0 {
		cfg.TransferBurstLimit = def.TransferBurstLimit
	}
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Config() Config {
	return e.cfg
}

// EvaluateWithdraw flags withdrawals at or above the configured threshold.
func (e *Evaluator) EvaluateWithdraw(amount money.Amount) Decision {
	if amount >= e.cfg.LargeWithdrawalThreshold {
		return Decision{Flagged: true, Rule: RuleLargeWithdrawal}
	}
	return Decision{}
}

// WindowStart is the inclusive lower edge of the transfer history window for asOf.
func (e *Evaluator) WindowStart(asOf time.Time) time.Time {
	return asOf.Add(-e.cfg.TransferWindow)
}

// EvaluateTransfer flags a transfer when the user already made TransferBurstLimit
// or more non-rejected transfers in the same currency within [asOf-window, asOf).
// history may contain unrelated records; they are ignored.
func (e *Evaluator) EvaluateTransfer(history []models.Transaction, userID, currency string, asOf time.Time) Decision {
	if e.CountRecentTransfers(history, userID, currency, asOf) >= e.cfg.TransferBurstLimit {
		return Decision{Flagged: true, Rule: RuleFrequentTransfers}
	}
	return Decision{}
}

func (e *Evaluator) CountRecentTransfers(history []models.Transaction, userID, currency string, asOf time.Time) int {
	from := e.WindowStart(asOf)
	count := 0
	for _, txn := range history {
		if txn.Kind != models.KindTransfer || txn.UserID != userID || txn.Currency != currency {
			continue
		}
		if txn.ReviewStatus == models.ReviewRejected {
			continue
		}
		if txn.Timestamp.Before(from) || !txn.Timestamp.Before(asOf) {
			continue
		}
		count++
	}
	return count
}
