// Package audit writes one structured log entry per balance-affecting or
// review event. Entries go through logrus with an "audit" field set, so a
// log shipper can route them apart from ordinary request logs.
package audit

import (
	"time"

	"github.com/ruralpay/wallet/internal/money"
	log "github.com/sirupsen/logrus"
)

type Event struct {
	Timestamp     time.Time
	EventType     string
	TransactionID string
	UserID        string
	Amount        money.Amount
	Currency      string
	Status        string
	Details       map[string]string
}

type Logger struct {
	entry *log.Entry
}

func NewLogger(base *log.Logger) *Logger {
	if base == nil {
		base = log.StandardLogger()
	}
	return &Logger{entry: base.WithField("audit", true)}
}

func (a *Logger) LogDeposit(txnID, userID string, amount money.Amount, currency string) {
	a.log(Event{EventType: "DEPOSIT", TransactionID: txnID, UserID: userID, Amount: amount, Currency: currency, Status: "SUCCESS"})
}

func (a *Logger) LogWithdraw(txnID, userID string, amount money.Amount, currency string, flagged bool) {
	a.log(Event{EventType: "WITHDRAW", TransactionID: txnID, UserID: userID, Amount: amount, Currency: currency,
		Status: status(flagged)})
}

func (a *Logger) LogTransfer(txnID, fromUser, toUser string, amount money.Amount, currency string, flagged bool) {
	a.log(Event{
		EventType:     "TRANSFER",
		TransactionID: txnID,
		UserID:        fromUser,
		Amount:        amount,
		Currency:      currency,
		Status:        status(flagged),
		Details:       map[string]string{"to_user": toUser},
	})
}

func (a *Logger) LogReview(txnID, reviewer, reviewStatus, comment string) {
	a.log(Event{
		EventType:     "REVIEW",
		TransactionID: txnID,
		UserID:        reviewer,
		Status:        reviewStatus,
		Details:       map[string]string{"comment": comment},
	})
}

func (a *Logger) LogError(operation, userID string, err error) {
	a.log(Event{
		EventType: operation,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	fields := log.Fields{
		"event_type": event.EventType,
		"status":     event.Status,
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
	}
	if event.TransactionID != "" {
		fields["transaction_id"] = event.TransactionID
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.Currency != "" {
		fields["amount"] = event.Amount.String()
		fields["currency"] = event.Currency
	}
	for k, v := range event.Details {
		fields[k] = v
	}
	a.entry.WithFields(fields).Info("AUDIT")
}

func status(flagged bool) string {
	if flagged {
		return "FLAGGED"
	}
	return "SUCCESS"
}
