package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruralpay/wallet/internal/models"
	"github.com/ruralpay/wallet/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWallet(t *testing.T, s *MemoryStore, userID, currency string, balance money.Amount) *models.Wallet {
	t.Helper()
	var out *models.Wallet
	err := s.WithinTx(context.Background(), func(tx Tx) error {
		w, err := tx.GetOrCreateWallet(context.Background(), userID, currency)
		if err != nil {
			return err
		}
		if balance > 0 {
			w, err = tx.ApplyDelta(context.Background(), w.ID, balance, w.Version)
			if err != nil {
				return err
			}
		}
		out = w
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestMemoryStore_WithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit makes wallet and records visible", func(t *testing.T) {
		s := NewMemoryStore()
		err := s.WithinTx(ctx, func(tx Tx) error {
			w, err := tx.GetOrCreateWallet(ctx, "alice", "INR")
			if err != nil {
				return err
			}
			assert.Equal(t, int64(1), w.Version)
			if _, err := tx.ApplyDelta(ctx, w.ID, 1000, w.Version); err != nil {
				return err
			}
			_, err = tx.AppendTransaction(ctx, &models.Transaction{
				UserID: "alice", Kind: models.KindDeposit, Amount: 1000, Currency: "INR",
			})
			return err
		})
		require.NoError(t, err)

		w, err := s.GetWallet(ctx, "alice", "INR")
		require.NoError(t, err)
		assert.Equal(t, money.Amount(1000), w.Balance)
		assert.Equal(t, int64(2), w.Version)

		txns, err := Collect(s.QueryTransactions(ctx, Filter{UserID: "alice"}))
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, models.ReviewPending, txns[0].ReviewStatus)
		assert.NotEmpty(t, txns[0].ID)
	})

	t.Run("error rolls everything back", func(t *testing.T) {
		s := NewMemoryStore()
		boom := errors.New("boom")
		err := s.WithinTx(ctx, func(tx Tx) error {
			w, _ := tx.GetOrCreateWallet(ctx, "alice", "INR")
			_, _ = tx.ApplyDelta(ctx, w.ID, 500, w.Version)
			_, _ = tx.AppendTransaction(ctx, &models.Transaction{UserID: "alice", Kind: models.KindDeposit, Amount: 500, Currency: "INR"})
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = s.GetWallet(ctx, "alice", "INR")
		assert.ErrorIs(t, err, ErrWalletNotFound)
		txns, err := Collect(s.QueryTransactions(ctx, Filter{}))
		require.NoError(t, err)
		assert.Empty(t, txns)
	})

	t.Run("negative balance is refused", func(t *testing.T) {
		s := NewMemoryStore()
		seedWallet(t, s, "alice", "INR", 100)
		err := s.WithinTx(ctx, func(tx Tx) error {
			w, err := tx.FindWallet(ctx, "alice", "INR")
			if err != nil {
				return err
			}
			_, err = tx.ApplyDelta(ctx, w.ID, -101, w.Version)
			return err
		})
		assert.ErrorIs(t, err, ErrNegativeBalance)

		w, _ := s.GetWallet(ctx, "alice", "INR")
		assert.Equal(t, money.Amount(100), w.Balance)
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		s := NewMemoryStore()
		seedWallet(t, s, "alice", "INR", 100)
		err := s.WithinTx(ctx, func(tx Tx) error {
			w, _ := tx.FindWallet(ctx, "alice", "INR")
			_, err := tx.ApplyDelta(ctx, w.ID, 1, w.Version-1)
			return err
		})
		assert.ErrorIs(t, err, ErrConcurrencyConflict)
	})

	t.Run("concurrent writer causes conflict at commit", func(t *testing.T) {
		s := NewMemoryStore()
		seedWallet(t, s, "alice", "INR", 100)

		err := s.WithinTx(ctx, func(tx Tx) error {
			w, err := tx.FindWallet(ctx, "alice", "INR")
			if err != nil {
				return err
			}
			if _, err := tx.ApplyDelta(ctx, w.ID, 10, w.Version); err != nil {
				return err
			}
			// Another unit of work commits in between.
			seedWallet(t, s, "alice", "INR", 5)
			return nil
		})
		assert.ErrorIs(t, err, ErrConcurrencyConflict)

		w, _ := s.GetWallet(ctx, "alice", "INR")
		assert.Equal(t, money.Amount(105), w.Balance)
	})

	t.Run("concurrent wallet creation conflicts", func(t *testing.T) {
		s := NewMemoryStore()
		err := s.WithinTx(ctx, func(tx Tx) error {
			if _, err := tx.GetOrCreateWallet(ctx, "bob", "USD"); err != nil {
				return err
			}
			seedWallet(t, s, "bob", "USD", 1)
			return nil
		})
		assert.ErrorIs(t, err, ErrConcurrencyConflict)

		wallets, err := s.ListWallets(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, wallets, 1)
	})

	t.Run("cancelled context", func(t *testing.T) {
		s := NewMemoryStore()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := s.WithinTx(cctx, func(tx Tx) error { return nil })
		assert.ErrorIs(t, err, ErrStorageUnavailable)
	})
}

func TestMemoryStore_RecentTransfersSeesOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	err := s.WithinTx(ctx, func(tx Tx) error {
		for i := 0; i < 2; i++ {
			if _, err := tx.AppendTransaction(ctx, &models.Transaction{
				UserID: "alice", Kind: models.KindTransfer, Amount: 1, Currency: "INR",
				TargetUserID: "bob", Timestamp: base.Add(time.Duration(i) * time.Second),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.AppendTransaction(ctx, &models.Transaction{
			UserID: "alice", Kind: models.KindTransfer, Amount: 1, Currency: "INR",
			TargetUserID: "bob", Timestamp: base.Add(5 * time.Second),
		})
		require.NoError(t, err)

		got, err := tx.RecentTransfers(ctx, "alice", "INR", base, base.Add(5*time.Second))
		require.NoError(t, err)
		assert.Len(t, got, 2, "upper bound is exclusive")

		got, err = tx.RecentTransfers(ctx, "alice", "INR", base, base.Add(6*time.Second))
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = tx.RecentTransfers(ctx, "alice", "USD", base, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_QueryAndReview(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var flaggedID, plainID string
	err := s.WithinTx(ctx, func(tx Tx) error {
		plainID, _ = tx.AppendTransaction(ctx, &models.Transaction{
			UserID: "alice", Kind: models.KindDeposit, Amount: 100, Currency: "INR", Timestamp: base,
		})
		flaggedID, _ = tx.AppendTransaction(ctx, &models.Transaction{
			UserID: "alice", Kind: models.KindWithdraw, Amount: 100, Currency: "INR",
			Timestamp: base.Add(time.Minute), Flagged: true,
		})
		_, err := tx.AppendTransaction(ctx, &models.Transaction{
			UserID: "bob", Kind: models.KindDeposit, Amount: 100, Currency: "USD", Timestamp: base.Add(2 * time.Minute),
		})
		return err
	})
	require.NoError(t, err)

	t.Run("newest first with limit", func(t *testing.T) {
		txns, err := Collect(s.QueryTransactions(ctx, Filter{Newest: true, Limit: 2}))
		require.NoError(t, err)
		require.Len(t, txns, 2)
		assert.Equal(t, "bob", txns[0].UserID)
		assert.Equal(t, flaggedID, txns[1].ID)
	})

	t.Run("flagged only", func(t *testing.T) {
		txns, err := Collect(s.QueryTransactions(ctx, Filter{FlaggedOnly: true}))
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, flaggedID, txns[0].ID)
	})

	t.Run("early stop", func(t *testing.T) {
		n := 0
		for _, err := range s.QueryTransactions(ctx, Filter{}) {
			require.NoError(t, err)
			n++
			break
		}
		assert.Equal(t, 1, n)
	})

	t.Run("review flagged", func(t *testing.T) {
		txn, err := s.UpdateReview(ctx, flaggedID, models.ReviewCleared, "ok")
		require.NoError(t, err)
		assert.Equal(t, models.ReviewCleared, txn.ReviewStatus)
		assert.Equal(t, "ok", txn.ReviewComment)

		stored, err := s.GetTransaction(ctx, flaggedID)
		require.NoError(t, err)
		assert.Equal(t, "ok", stored.ReviewComment)
	})

	t.Run("review unflagged", func(t *testing.T) {
		_, err := s.UpdateReview(ctx, plainID, models.ReviewCleared, "")
		assert.ErrorIs(t, err, ErrNotFlagged)
	})

	t.Run("review missing", func(t *testing.T) {
		_, err := s.UpdateReview(ctx, "nope", models.ReviewCleared, "")
		assert.ErrorIs(t, err, ErrTransactionNotFound)
	})
}

func TestMemoryStore_Aggregates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedWallet(t, s, "alice", "INR", 300)
	seedWallet(t, s, "alice", "USD", 200)
	seedWallet(t, s, "bob", "INR", 600)
	seedWallet(t, s, "carol", "EUR", 0)

	totals, err := s.TotalsByCurrency(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.CurrencyTotal{
		{Currency: "EUR", Total: 0},
		{Currency: "INR", Total: 900},
		{Currency: "USD", Total: 200},
	}, totals)

	users, err := s.BalancesByUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.UserBalance{
		{UserID: "bob", Total: 600},
		{UserID: "alice", Total: 500},
		{UserID: "carol", Total: 0},
	}, users)

	wallets, err := s.ListWallets(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, "INR", wallets[0].Currency)
	assert.Equal(t, "USD", wallets[1].Currency)
}

func TestMemoryStore_BalanceLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	full := seedWallet(t, s, "alice", "INR", money.MaxAmount)
	seedWallet(t, s, "bob", "INR", money.MaxAmount)

	err := s.WithinTx(ctx, func(tx Tx) error {
		w, err := tx.FindWallet(ctx, "alice", "INR")
		if err != nil {
			return err
		}
		_, err = tx.ApplyDelta(ctx, w.ID, 1, w.Version)
		return err
	})
	assert.ErrorIs(t, err, ErrBalanceLimit)

	w, err := s.GetWallet(ctx, "alice", "INR")
	require.NoError(t, err)
	assert.Equal(t, money.MaxAmount, w.Balance)
	assert.Equal(t, full.Version, w.Version)

	totals, err := s.TotalsByCurrency(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.CurrencyTotal{{Currency: "INR", Total: money.MaxAmount}}, totals)

	users, err := s.BalancesByUser(ctx)
	require.NoError(t, err)
	for _, u := range users {
		assert.Equal(t, money.MaxAmount, u.Total)
	}
}

func TestMemoryStore_AppendRejectsUnknownKind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.AppendTransaction(ctx, &models.Transaction{
			UserID: "alice", Kind: "refund", Amount: 100, Currency: "INR",
		})
		return err
	})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	txns, err := Collect(s.QueryTransactions(ctx, Filter{}))
	require.NoError(t, err)
	assert.Empty(t, txns)
}
