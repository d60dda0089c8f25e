package ledger

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/wallet/internal/models"
	"github.com/ruralpay/wallet/internal/money"
)

// MemoryStore keeps the ledger in process memory. Units of work run
// optimistically against a private copy of every wallet they touch and are
// validated against the committed versions when they commit.
type MemoryStore struct {
	mu       sync.RWMutex
	wallets  map[string]*models.Wallet
	byKey    map[models.WalletKey]string
	txns     []models.Transaction
	txnIndex map[string]int
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:  make(map[string]*models.Wallet),
		byKey:    make(map[models.WalletKey]string),
		txnIndex: make(map[string]int),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	tx := &memTx{
		store:   s,
		touched: make(map[string]*memWallet),
		keys:    make(map[models.WalletKey]string),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return tx.commit()
}

func (s *MemoryStore) GetWallet(ctx context.Context, userID, currency string) (*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[models.WalletKey{UserID: userID, Currency: currency}]
	if !ok {
		return nil, ErrWalletNotFound
	}
	w := *s.wallets[id]
	return &w, nil
}

func (s *MemoryStore) ListWallets(ctx context.Context, userID string) ([]models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	slices.SortFunc(out, func(a, b models.Wallet) int { return cmp.Compare(a.Currency, b.Currency) })
	return out, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.txnIndex[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	t := s.txns[idx]
	return &t, nil
}

func (s *MemoryStore) QueryTransactions(ctx context.Context, filter Filter) iter.Seq2[models.Transaction, error] {
	return func(yield func(models.Transaction, error) bool) {
		s.mu.RLock()
		var matched []models.Transaction
		for i := range s.txns {
			if filter.matches(&s.txns[i]) {
				matched = append(matched, s.txns[i])
			}
		}
		s.mu.RUnlock()

		if filter.Newest {
			// Later appends win ties.
			slices.Reverse(matched)
			slices.SortStableFunc(matched, func(a, b models.Transaction) int {
				return b.Timestamp.Compare(a.Timestamp)
			})
		}
		for i, txn := range matched {
			if filter.Limit > 0 && i >= filter.Limit {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(models.Transaction{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err))
				return
			}
			if !yield(txn, nil) {
				return
			}
		}
	}
}

func (s *MemoryStore) UpdateReview(ctx context.Context, id string, status models.ReviewStatus, comment string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.txnIndex[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if !s.txns[idx].Flagged {
		return nil, ErrNotFlagged
	}
	s.txns[idx].ReviewStatus = status
	s.txns[idx].ReviewComment = comment
	t := s.txns[idx]
	return &t, nil
}

func (s *MemoryStore) TotalsByCurrency(ctx context.Context) ([]models.CurrencyTotal, error) {
	s.mu.RLock()
	totals := make(map[string]money.Amount)
	for _, w := range s.wallets {
		totals[w.Currency] = totals[w.Currency].SaturatingAdd(w.Balance)
	}
	s.mu.RUnlock()

	out := make([]models.CurrencyTotal, 0, len(totals))
	for c, total := range totals {
		out = append(out, models.CurrencyTotal{Currency: c, Total: total})
	}
	slices.SortFunc(out, func(a, b models.CurrencyTotal) int { return cmp.Compare(a.Currency, b.Currency) })
	return out, nil
}

func (s *MemoryStore) BalancesByUser(ctx context.Context) ([]models.UserBalance, error) {
	s.mu.RLock()
	totals := make(map[string]money.Amount)
	for _, w := range s.wallets {
		totals[w.UserID] = totals[w.UserID].SaturatingAdd(w.Balance)
	}
	s.mu.RUnlock()

	out := make([]models.UserBalance, 0, len(totals))
	for u, total := range totals {
		out = append(out, models.UserBalance{UserID: u, Total: total})
	}
	slices.SortFunc(out, func(a, b models.UserBalance) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out, nil
}

// memWallet is a wallet as seen by one unit of work.
type memWallet struct {
	// baseVersion is the committed version when first acquired; 0 for wallets created in this unit.
	baseVersion int64
	created     bool
	wallet      models.Wallet
}

type memTx struct {
	store    *MemoryStore
	touched  map[string]*memWallet
	keys     map[models.WalletKey]string
	appended []models.Transaction
}

func (tx *memTx) acquire(key models.WalletKey) *memWallet {
	if id, ok := tx.keys[key]; ok {
		return tx.touched[id]
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	id, ok := tx.store.byKey[key]
	if !ok {
		return nil
	}
	mw := &memWallet{baseVersion: tx.store.wallets[id].Version, wallet: *tx.store.wallets[id]}
	tx.touched[id] = mw
	tx.keys[key] = id
	return mw
}

func (tx *memTx) FindWallet(ctx context.Context, userID, currency string) (*models.Wallet, error) {
	mw := tx.acquire(models.WalletKey{UserID: userID, Currency: currency})
	if mw == nil {
		return nil, ErrWalletNotFound
	}
	w := mw.wallet
	return &w, nil
}

func (tx *memTx) GetOrCreateWallet(ctx context.Context, userID, currency string) (*models.Wallet, error) {
	key := models.WalletKey{UserID: userID, Currency: currency}
	mw := tx.acquire(key)
	if mw == nil {
		now := tx.store.now()
		mw = &memWallet{
			created: true,
			wallet: models.Wallet{
				ID:        uuid.NewString(),
				UserID:    userID,
				Currency:  currency,
				Version:   1,
				CreatedAt: now,
				UpdatedAt: now,
			},
		}
		tx.touched[mw.wallet.ID] = mw
		tx.keys[key] = mw.wallet.ID
	}
	w := mw.wallet
	return &w, nil
}

func (tx *memTx) ApplyDelta(ctx context.Context, walletID string, delta money.Amount, expectedVersion int64) (*models.Wallet, error) {
	mw, ok := tx.touched[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	if mw.wallet.Version != expectedVersion {
		return nil, ErrConcurrencyConflict
	}
	if !mw.created {
		tx.store.mu.RLock()
		committed := tx.store.wallets[walletID].Version
		tx.store.mu.RUnlock()
		if committed != mw.baseVersion {
			return nil, ErrConcurrencyConflict
		}
	}

	balance, ok := mw.wallet.Balance.Add(delta)
	if !ok {
		return nil, ErrBalanceLimit
	}
	if balance < 0 {
		return nil, ErrNegativeBalance
	}
	mw.wallet.Balance = balance
	mw.wallet.Version++
	mw.wallet.UpdatedAt = tx.store.now()

	w := mw.wallet
	return &w, nil
}

func (tx *memTx) AppendTransaction(ctx context.Context, txn *models.Transaction) (string, error) {
	if !txn.Kind.Valid() {
		return "", fmt.Errorf("%w: kind %q", ErrInvalidRecord, txn.Kind)
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.Timestamp.IsZero() {
		txn.Timestamp = tx.store.now()
	}
	if txn.ReviewStatus == "" {
		txn.ReviewStatus = models.ReviewPending
	}
	tx.appended = append(tx.appended, *txn)
	return txn.ID, nil
}

func (tx *memTx) RecentTransfers(ctx context.Context, userID, currency string, from, to time.Time) ([]models.Transaction, error) {
	f := Filter{UserID: userID, Currency: currency, Kind: models.KindTransfer, Since: from, Until: to}

	var out []models.Transaction
	tx.store.mu.RLock()
	for i := range tx.store.txns {
		if f.matches(&tx.store.txns[i]) {
			out = append(out, tx.store.txns[i])
		}
	}
	tx.store.mu.RUnlock()

	for i := range tx.appended {
		if f.matches(&tx.appended[i]) {
			out = append(out, tx.appended[i])
		}
	}
	return out, nil
}

func (tx *memTx) commit() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, mw := range tx.touched {
		if mw.created {
			if _, exists := s.byKey[models.WalletKey{UserID: mw.wallet.UserID, Currency: mw.wallet.Currency}]; exists {
				return ErrConcurrencyConflict
			}
			continue
		}
		if s.wallets[id].Version != mw.baseVersion {
			return ErrConcurrencyConflict
		}
	}

	for id, mw := range tx.touched {
		w := mw.wallet
		s.wallets[id] = &w
		if mw.created {
			s.byKey[models.WalletKey{UserID: w.UserID, Currency: w.Currency}] = id
		}
	}
	for _, txn := range tx.appended {
		s.txnIndex[txn.ID] = len(s.txns)
		s.txns = append(s.txns, txn)
	}
	return nil
}
