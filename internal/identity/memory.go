package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/wallet/internal/models"
)

type MemoryDirectory struct {
	mu     sync.RWMutex
	byID   map[string]*models.User
	byName map[string]string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:   make(map[string]*models.User),
		byName: make(map[string]string),
	}
}

func (d *MemoryDirectory) ResolveUser(ctx context.Context, id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (d *MemoryDirectory) ResolveUserByName(ctx context.Context, username string) (*models.User, error) {
	d.mu.RLock()
	id, ok := d.byName[NormalizeUsername(username)]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return d.ResolveUser(ctx, id)
}

func (d *MemoryDirectory) CreateUser(ctx context.Context, username, passwordHash, role string) (*models.User, error) {
	name := NormalizeUsername(username)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byName[name]; exists {
		return nil, ErrUsernameTaken
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     name,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	d.byID[u.ID] = u
	d.byName[name] = u.ID

	out := *u
	return &out, nil
}
