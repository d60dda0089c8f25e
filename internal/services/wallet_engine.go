package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ruralpay/wallet/internal/audit"
	"github.com/ruralpay/wallet/internal/fraud"
	"github.com/ruralpay/wallet/internal/identity"
	"github.com/ruralpay/wallet/internal/ledger"
	"github.com/ruralpay/wallet/internal/metrics"
	"github.com/ruralpay/wallet/internal/models"
	"github.com/ruralpay/wallet/internal/money"
	"github.com/ruralpay/wallet/internal/notify"
	log "github.com/sirupsen/logrus"
)

const (
	opDeposit  = "deposit"
	opWithdraw = "withdraw"
	opTransfer = "transfer"

	DefaultMaxAttempts = 3
	DefaultAdminEmail  = "admin@wallet.local"
)

type DepositResult struct {
	TransactionID string       `json:"transaction_id"`
	Currency      string       `json:"currency"`
	Balance       money.Amount `json:"new_balance"`
}

type WithdrawResult struct {
	TransactionID string       `json:"transaction_id"`
	Currency      string       `json:"currency"`
	Balance       money.Amount `json:"new_balance"`
	Flagged       bool         `json:"flagged"`
}

type TransferResult struct {
	TransactionID string       `json:"transaction_id"`
	Currency      string       `json:"currency"`
	Recipient     string       `json:"recipient"`
	Balance       money.Amount `json:"new_balance"`
	Flagged       bool         `json:"flagged"`
}

// WalletEngine is the only writer of wallet balances and transaction records.
// Every operation runs as one ledger unit of work and is retried from the
// start when the store reports a concurrent update.
type WalletEngine struct {
	store       ledger.Store
	users       identity.Directory
	evaluator   *fraud.Evaluator
	notifier    notify.Notifier
	audit       *audit.Logger
	adminEmail  string
	maxAttempts int
	now         func() time.Time
}

type EngineOption func(*WalletEngine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *WalletEngine) { e.now = now }
}

func WithMaxAttempts(n int) EngineOption {
	return func(e *WalletEngine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithAdminEmail(email string) EngineOption {
	return func(e *WalletEngine) {
		if email != "" {
			e.adminEmail = email
		}
	}
}

func WithAuditLogger(a *audit.Logger) EngineOption {
	return func(e *WalletEngine) { e.audit = a }
}

func NewWalletEngine(store ledger.Store, users identity.Directory, evaluator *fraud.Evaluator, notifier notify.Notifier, opts ...EngineOption) *WalletEngine {
	e := &WalletEngine{
		store:       store,
		users:       users,
		evaluator:   evaluator,
		notifier:    notifier,
		audit:       audit.NewLogger(nil),
		adminEmail:  DefaultAdminEmail,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func validateInput(amount money.Amount, currency string) (string, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	return money.NormalizeCurrency(currency)
}

// Deposit credits the user's wallet, creating it on first use.
func (e *WalletEngine) Deposit(ctx context.Context, userID string, amount money.Amount, currency string) (*DepositResult, error) {
	started := time.Now()

	currency, err := validateInput(amount, currency)
	if err != nil {
		return nil, e.fail(opDeposit, userID, started, err)
	}

	var result DepositResult
	err = e.withRetry(ctx, opDeposit, func(tx ledger.Tx) error {
		w, err := tx.GetOrCreateWallet(ctx, userID, currency)
		if err != nil {
			return err
		}
		w, err = tx.ApplyDelta(ctx, w.ID, amount, w.Version)
		if err != nil {
			return err
		}
		id, err := tx.AppendTransaction(ctx, &models.Transaction{
			UserID:    userID,
			Kind:      models.KindDeposit,
			Amount:    amount,
			Currency:  currency,
			Timestamp: e.now(),
		})
		if err != nil {
			return err
		}
		result = DepositResult{TransactionID: id, Currency: currency, Balance: w.Balance}
		return nil
	})
	if err != nil {
		return nil, e.fail(opDeposit, userID, started, err)
	}

	log.Printf("[WALLET] Deposit of %s %s for user %s committed (txn %s)", amount, currency, userID, result.TransactionID)
	e.audit.LogDeposit(result.TransactionID, userID, amount, currency)
	metrics.ObserveOperation(opDeposit, "ok", started)
	return &result, nil
}

// Withdraw debits an existing wallet. A missing wallet counts as a zero balance
// and is never created.
func (e *WalletEngine) Withdraw(ctx context.Context, userID string, amount money.Amount, currency string) (*WithdrawResult, error) {
	started := time.Now()

	currency, err := validateInput(amount, currency)
	if err != nil {
		return nil, e.fail(opWithdraw, userID, started, err)
	}

	var (
		result   WithdrawResult
		decision fraud.Decision
	)
	err = e.withRetry(ctx, opWithdraw, func(tx ledger.Tx) error {
		w, err := tx.FindWallet(ctx, userID, currency)
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return ErrInsufficientFunds
		}
		if err != nil {
			return err
		}
		if w.Balance < amount {
			return ErrInsufficientFunds
		}

		decision = e.evaluator.EvaluateWithdraw(amount)

		w, err = tx.ApplyDelta(ctx, w.ID, -amount, w.Version)
		if err != nil {
			return err
		}
		id, err := tx.AppendTransaction(ctx, &models.Transaction{
			UserID:    userID,
			Kind:      models.KindWithdraw,
			Amount:    amount,
			Currency:  currency,
			Timestamp: e.now(),
			Flagged:   decision.Flagged,
		})
		if err != nil {
			return err
		}
		result = WithdrawResult{TransactionID: id, Currency: currency, Balance: w.Balance, Flagged: decision.Flagged}
		return nil
	})
	if err != nil {
		return nil, e.fail(opWithdraw, userID, started, err)
	}

	log.Printf("[WALLET] Withdrawal of %s %s for user %s committed (txn %s, flagged=%t)",
		amount, currency, userID, result.TransactionID, result.Flagged)
	e.audit.LogWithdraw(result.TransactionID, userID, amount, currency, result.Flagged)
	metrics.ObserveOperation(opWithdraw, "ok", started)

	if decision.Flagged {
		e.alert(ctx, decision.Rule, userID, "", amount, currency, result.TransactionID)
	}
	return &result, nil
}

// Transfer moves funds to the user named targetUsername. The sender's debit,
// the receiver's credit and both records commit together.
func (e *WalletEngine) Transfer(ctx context.Context, senderID, targetUsername string, amount money.Amount, currency string) (*TransferResult, error) {
	started := time.Now()

	currency, err := validateInput(amount, currency)
	if err != nil {
		return nil, e.fail(opTransfer, senderID, started, err)
	}

	target, err := e.users.ResolveUserByName(ctx, targetUsername)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, e.fail(opTransfer, senderID, started, fmt.Errorf("%w: unknown user %q", ErrInvalidRecipient, targetUsername))
	}
	if err != nil {
		return nil, e.fail(opTransfer, senderID, started, err)
	}
	if target.ID == senderID {
		return nil, e.fail(opTransfer, senderID, started, fmt.Errorf("%w: cannot transfer to yourself", ErrInvalidRecipient))
	}

	senderKey := models.WalletKey{UserID: senderID, Currency: currency}
	receiverKey := models.WalletKey{UserID: target.ID, Currency: currency}
	order := []models.WalletKey{senderKey, receiverKey}
	slices.SortFunc(order, func(a, b models.WalletKey) int {
		if a.Less(b) {
			return -1
		}
		return 1
	})

	var (
		result   TransferResult
		decision fraud.Decision
	)
	err = e.withRetry(ctx, opTransfer, func(tx ledger.Tx) error {
		asOf := e.now()

		var sender, receiver *models.Wallet
		for _, key := range order {
			if key == senderKey {
				w, err := tx.FindWallet(ctx, key.UserID, key.Currency)
				if errors.Is(err, ledger.ErrWalletNotFound) {
					return ErrInsufficientFunds
				}
				if err != nil {
					return err
				}
				sender = w
				continue
			}
			w, err := tx.GetOrCreateWallet(ctx, key.UserID, key.Currency)
			if err != nil {
				return err
			}
			receiver = w
		}
		if sender.Balance < amount {
			return ErrInsufficientFunds
		}

		history, err := tx.RecentTransfers(ctx, senderID, currency, e.evaluator.WindowStart(asOf), asOf)
		if err != nil {
			return err
		}
		decision = e.evaluator.EvaluateTransfer(history, senderID, currency, asOf)

		sender, err = tx.ApplyDelta(ctx, sender.ID, -amount, sender.Version)
		if err != nil {
			return err
		}
		if _, err = tx.ApplyDelta(ctx, receiver.ID, amount, receiver.Version); err != nil {
			return err
		}

		id, err := tx.AppendTransaction(ctx, &models.Transaction{
			UserID:       senderID,
			Kind:         models.KindTransfer,
			Amount:       amount,
			Currency:     currency,
			TargetUserID: target.ID,
			Timestamp:    asOf,
			Flagged:      decision.Flagged,
		})
		if err != nil {
			return err
		}
		if _, err := tx.AppendTransaction(ctx, &models.Transaction{
			UserID:    target.ID,
			Kind:      models.KindDeposit,
			Amount:    amount,
			Currency:  currency,
			Timestamp: asOf,
		}); err != nil {
			return err
		}

		result = TransferResult{
			TransactionID: id,
			Currency:      currency,
			Recipient:     target.Username,
			Balance:       sender.Balance,
			Flagged:       decision.Flagged,
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(opTransfer, senderID, started, err)
	}

	log.Printf("[WALLET] Transfer of %s %s from %s to %s committed (txn %s, flagged=%t)",
		amount, currency, senderID, target.ID, result.TransactionID, result.Flagged)
	e.audit.LogTransfer(result.TransactionID, senderID, target.ID, amount, currency, result.Flagged)
	metrics.ObserveOperation(opTransfer, "ok", started)

	if decision.Flagged {
		e.alert(ctx, decision.Rule, senderID, target.Username, amount, currency, result.TransactionID)
	}
	return &result, nil
}

// withRetry runs fn as a unit of work, starting over on concurrency conflicts.
func (e *WalletEngine) withRetry(ctx context.Context, op string, fn func(tx ledger.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := e.store.WithinTx(ctx, fn)
		if !errors.Is(err, ledger.ErrConcurrencyConflict) {
			return translate(err)
		}
		if attempt >= e.maxAttempts {
			return fmt.Errorf("%w: gave up after %d attempts", ErrTransientConflict, attempt)
		}
		metrics.ConflictRetries.WithLabelValues(op).Inc()
		log.Debugf("[WALLET] %s hit a concurrent update, retrying (attempt %d/%d)", op, attempt+1, e.maxAttempts)
	}
}

func (e *WalletEngine) fail(op, userID string, started time.Time, err error) error {
	err = translate(err)
	log.Printf("[WALLET] %s for user %s failed: %v", op, userID, err)
	e.audit.LogError(op, userID, err)
	metrics.ObserveOperation(op, resultLabel(err), started)
	return err
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidCurrency), errors.Is(err, ErrInvalidRecipient),
		errors.Is(err, ErrBalanceLimit):
		return "invalid"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrTransientConflict):
		return "conflict"
	default:
		return "error"
	}
}

// alert sends the fraud notification for a committed, flagged transaction.
// Delivery problems are logged and otherwise ignored.
func (e *WalletEngine) alert(ctx context.Context, rule fraud.Rule, userID, recipient string, amount money.Amount, currency, txnID string) {
	metrics.FlaggedTotal.WithLabelValues(string(rule)).Inc()

	username := userID
	if u, err := e.users.ResolveUser(ctx, userID); err == nil {
		username = u.Username
	}

	msg := notify.Message{Recipient: e.adminEmail}
	switch rule {
	case fraud.RuleLargeWithdrawal:
		msg.Subject = "Fraud Alert: Large Withdrawal"
		msg.Body = fmt.Sprintf("User: %s\nAmount: %s\nCurrency: %s\nTxn ID: %s\nType: Withdrawal",
			username, amount, currency, txnID)
	default:
		msg.Subject = "Fraud Alert: Frequent Transfers"
		msg.Body = fmt.Sprintf("User: %s\nAmount: %s\nCurrency: %s\nTo: %s\nTxn ID: %s\nType: Transfer",
			username, amount, currency, recipient, txnID)
	}

	if err := e.notifier.Notify(ctx, msg); err != nil {
		metrics.NotifyFailures.Inc()
		log.Printf("[WALLET] Fraud notification for txn %s failed: %v", txnID, err)
	}
}
