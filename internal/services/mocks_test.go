package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ruralpay/wallet/internal/ledger"
	"github.com/ruralpay/wallet/internal/models"
	"github.com/ruralpay/wallet/internal/notify"
	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// sentMessages returns the messages passed to Notify so far.
func (m *MockNotifier) sentMessages() []notify.Message {
	var out []notify.Message
	for _, call := range m.Calls {
		if call.Method == "Notify" {
			out = append(out, call.Arguments.Get(1).(notify.Message))
		}
	}
	return out
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ResolveUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDirectory) ResolveUserByName(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDirectory) CreateUser(ctx context.Context, username, passwordHash, role string) (*models.User, error) {
	args := m.Called(ctx, username, passwordHash, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// flakyStore fails the first `conflicts` units of work with a concurrency
// conflict, or every unit of work with err when set.
type flakyStore struct {
	ledger.Store
	conflicts atomic.Int32
	err       error
	calls     atomic.Int32
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	if s.conflicts.Add(-1) >= 0 {
		return ledger.ErrConcurrencyConflict
	}
	return s.Store.WithinTx(ctx, fn)
}

// stepClock advances by step on every reading.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(start time.Time, step time.Duration) *stepClock {
	return &stepClock{now: start, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
