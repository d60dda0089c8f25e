package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ruralpay/wallet/internal/models"
	log "github.com/sirupsen/logrus"
)

type contextKey int

const (
	userIDKey contextKey = iota
	roleKey
)

var errRevoked = errors.New("token has been revoked")

// BlacklistKey is the Redis key marking a logged-out token.
func BlacklistKey(token string) string {
	return fmt.Sprintf("blacklist:%s", token)
}

// Authenticator verifies HS256 bearer tokens and rejects blacklisted ones.
type Authenticator struct {
	secret []byte
	redis  *redis.Client
}

// NewAuthenticator returns an Authenticator. With a nil Redis client the
// blacklist is not consulted.
func NewAuthenticator(secret string, rdb *redis.Client) *Authenticator {
	return &Authenticator{secret: []byte(secret), redis: rdb}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		token, ok := BearerToken(authHeader)
		if !ok {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		userID, role, err := a.validateToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, errRevoked) {
				http.Error(w, "Token has been revoked", http.StatusUnauthorized)
				return
			}
			var redisErr redisUnavailable
			if errors.As(err, &redisErr) {
				log.Printf("[AUTH] Blacklist lookup failed: %v", err)
				http.Error(w, "Authentication temporarily unavailable", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, role)))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type redisUnavailable struct{ err error }

func (e redisUnavailable) Error() string { return e.err.Error() }
func (e redisUnavailable) Unwrap() error { return e.err }

func (a *Authenticator) validateToken(ctx context.Context, tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", jwt.ErrTokenInvalidClaims
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", "", jwt.ErrTokenInvalidClaims
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = models.RoleUser
	}

	if a.redis != nil {
		n, err := a.redis.Exists(ctx, BlacklistKey(tokenString)).Result()
		if err != nil {
			return "", "", redisUnavailable{err}
		}
		if n > 0 {
			return "", "", errRevoked
		}
	}
	return userID, role, nil
}

// RequireAdmin lets the request through only for callers with the admin role.
// It must run after Authenticator.Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RoleFromContext(r.Context()) != models.RoleAdmin {
			userID, _ := UserIDFromContext(r.Context())
			log.Printf("[AUTH] Admin route %s refused for user %s", r.URL.Path, userID)
			http.Error(w, "Admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithIdentity stores the authenticated caller on the context.
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}
