package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/ruralpay/wallet/internal/models"
	"github.com/ruralpay/wallet/internal/money"
)

const walletColumns = `id, user_id, currency, balance, version, created_at, updated_at`

// maxBalance caps NUMERIC sums so they still fit the BIGINT cast.
const maxBalance = `9223372036854775807`

const transactionColumns = `id, user_id, kind, amount, currency, target_user_id, created_at, flagged, review_status, review_comment`

// PostgresStore is the ledger on PostgreSQL. Wallet rows are locked with
// SELECT ... FOR UPDATE when acquired and updated with a version check.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *PostgresStore) GetWallet(ctx context.Context, userID, currency string) (*models.Wallet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1 AND currency = $2`, userID, currency)
	return scanWallet(row)
}

func (s *PostgresStore) ListWallets(ctx context.Context, userID string) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1
		ORDER BY currency`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return wallets, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTransactionNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (s *PostgresStore) QueryTransactions(ctx context.Context, filter Filter) iter.Seq2[models.Transaction, error] {
	return func(yield func(models.Transaction, error) bool) {
		query, args := buildTransactionQuery(filter)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(models.Transaction{}, classify(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTransaction(rows)
			if err != nil {
				yield(models.Transaction{}, err)
				return
			}
			if !yield(*t, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Transaction{}, classify(err))
		}
	}
}

func buildTransactionQuery(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.Currency != "" {
		add("currency = $%d", f.Currency)
	}
	if f.FlaggedOnly {
		where = append(where, "flagged")
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at < $%d", f.Until)
	}

	var b strings.Builder
	b.WriteString("SELECT " + transactionColumns + " FROM transactions")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if f.Newest {
		b.WriteString(" ORDER BY created_at DESC, id")
	} else {
		b.WriteString(" ORDER BY created_at, id")
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (s *PostgresStore) UpdateReview(ctx context.Context, id string, status models.ReviewStatus, comment string) (*models.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTransactionNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback()

	var flagged bool
	err = tx.QueryRowContext(ctx, `SELECT flagged FROM transactions WHERE id = $1 FOR UPDATE`, id).Scan(&flagged)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	if !flagged {
		return nil, ErrNotFlagged
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE transactions
		SET review_status = $1, review_comment = $2
		WHERE id = $3
		RETURNING `+transactionColumns, string(status), comment, id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return t, nil
}

func (s *PostgresStore) TotalsByCurrency(ctx context.Context) ([]models.CurrencyTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT currency, LEAST(COALESCE(SUM(balance), 0), `+maxBalance+`)::BIGINT
		FROM wallets
		GROUP BY currency
		ORDER BY currency`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var totals []models.CurrencyTotal
	for rows.Next() {
		var t models.CurrencyTotal
		if err := rows.Scan(&t.Currency, &t.Total); err != nil {
			return nil, classify(err)
		}
		totals = append(totals, t)
	}
	return totals, classify(rows.Err())
}

func (s *PostgresStore) BalancesByUser(ctx context.Context) ([]models.UserBalance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, LEAST(COALESCE(SUM(balance), 0), `+maxBalance+`)::BIGINT AS total
		FROM wallets
		GROUP BY user_id
		ORDER BY total DESC, user_id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var balances []models.UserBalance
	for rows.Next() {
		var b models.UserBalance
		if err := rows.Scan(&b.UserID, &b.Total); err != nil {
			return nil, classify(err)
		}
		balances = append(balances, b)
	}
	return balances, classify(rows.Err())
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) FindWallet(ctx context.Context, userID, currency string) (*models.Wallet, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1 AND currency = $2
		FOR UPDATE`, userID, currency)
	return scanWallet(row)
}

func (t *pgTx) GetOrCreateWallet(ctx context.Context, userID, currency string) (*models.Wallet, error) {
	now := time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, currency, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 1, $4, $4)
		ON CONFLICT (user_id, currency) DO NOTHING`,
		uuid.NewString(), userID, currency, now)
	if err != nil {
		return nil, classify(err)
	}
	return t.FindWallet(ctx, userID, currency)
}

func (t *pgTx) ApplyDelta(ctx context.Context, walletID string, delta money.Amount, expectedVersion int64) (*models.Wallet, error) {
	row := t.tx.QueryRowContext(ctx, `
		UPDATE wallets
		SET balance = balance + $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING `+walletColumns,
		int64(delta), time.Now().UTC(), walletID, expectedVersion)

	w, err := scanWallet(row)
	if errors.Is(err, ErrWalletNotFound) {
		// The row exists (it was acquired) but its version moved on.
		return nil, ErrConcurrencyConflict
	}
	return w, err
}

func (t *pgTx) AppendTransaction(ctx context.Context, txn *models.Transaction) (string, error) {
	if !txn.Kind.Valid() {
		return "", fmt.Errorf("%w: kind %q", ErrInvalidRecord, txn.Kind)
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.Timestamp.IsZero() {
		txn.Timestamp = time.Now().UTC()
	}
	if txn.ReviewStatus == "" {
		txn.ReviewStatus = models.ReviewPending
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		txn.ID, txn.UserID, string(txn.Kind), int64(txn.Amount), txn.Currency,
		sql.NullString{String: txn.TargetUserID, Valid: txn.TargetUserID != ""},
		txn.Timestamp, txn.Flagged, string(txn.ReviewStatus), txn.ReviewComment)
	if err != nil {
		return "", classify(err)
	}
	return txn.ID, nil
}

func (t *pgTx) RecentTransfers(ctx context.Context, userID, currency string, from, to time.Time) ([]models.Transaction, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1 AND kind = 'transfer' AND currency = $2
		AND created_at >= $3 AND created_at < $4`,
		userID, currency, from, to)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *txn)
	}
	return out, classify(rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(row scanner) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Currency, &w.Balance, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return &w, nil
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var (
		t      models.Transaction
		kind   string
		status string
		target sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &t.Currency, &target,
		&t.Timestamp, &t.Flagged, &status, &t.ReviewComment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	t.Kind = models.TransactionKind(kind)
	t.ReviewStatus = models.ReviewStatus(status)
	t.TargetUserID = target.String
	t.Timestamp = t.Timestamp.UTC()
	return &t, nil
}

// classify maps driver errors onto the ledger's error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pqErr.Message)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", ErrNegativeBalance, pqErr.Message)
		case "22003": // numeric_value_out_of_range
			return fmt.Errorf("%w: %s", ErrBalanceLimit, pqErr.Message)
		}
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
