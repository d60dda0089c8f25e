// Package notify delivers administrator alerts. Delivery is best effort:
// callers log a failed Notify and carry on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ruralpay/wallet/internal/metrics"
	log "github.com/sirupsen/logrus"
)

type Message struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// envelope is the wire form used by the queue-backed notifiers.
type envelope struct {
	Message
	SentAt time.Time `json:"sent_at"`
}

func encode(msg Message, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(envelope{Message: msg, SentAt: now.UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return payload, nil
}

// LogNotifier writes messages to the log instead of sending mail.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.WithFields(log.Fields{
		"recipient": msg.Recipient,
		"subject":   msg.Subject,
	}).Infof("[NOTIFY] %s", msg.Body)
	return nil
}

// Async hands each message to a goroutine with its own timeout so the
// caller never waits on delivery.
type Async struct {
	next    Notifier
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(next Notifier, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{next: next, timeout: timeout}
}

func (a *Async) Notify(_ context.Context, msg Message) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.next.Notify(ctx, msg); err != nil {
			metrics.NotifyFailures.Inc()
			log.Printf("[NOTIFY] Delivery of %q to %s failed: %v", msg.Subject, msg.Recipient, err)
		}
	}()
	return nil
}

// Wait blocks until every pending delivery has finished.
func (a *Async) Wait() {
	a.wg.Wait()
}
