// Package identity resolves and registers wallet users.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/ruralpay/wallet/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
)

type Directory interface {
	ResolveUser(ctx context.Context, id string) (*models.User, error)
	ResolveUserByName(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, username, passwordHash, role string) (*models.User, error)
}

// NormalizeUsername is applied before every lookup and insert, so usernames
// compare case-insensitively.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
