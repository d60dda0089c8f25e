package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string    `json:"id" example:"6f1c8f1e-2d7b-4a53-9d0e-5b2a1b7c9e10"` // User ID
	Username     string    `json:"username" example:"alice"`                          // Unique login name
	Role         string    `json:"role" example:"user"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
