package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/ruralpay/wallet/internal/models"
)

type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) ResolveUser(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	row := d.db.QueryRowContext(ctx, "SELECT id, username, role, password, created_at FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (d *PostgresDirectory) ResolveUserByName(ctx context.Context, username string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx, "SELECT id, username, role, password, created_at FROM users WHERE username = $1",
		NormalizeUsername(username))
	return scanUser(row)
}

func (d *PostgresDirectory) CreateUser(ctx context.Context, username, passwordHash, role string) (*models.User, error) {
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     NormalizeUsername(username),
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := d.db.ExecContext(ctx, "INSERT INTO users (id, username, password, role, created_at) VALUES ($1, $2, $3, $4, $5)",
		u.ID, u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}
