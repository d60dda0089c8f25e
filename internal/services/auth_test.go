package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ruralpay/wallet/internal/config"
	"github.com/ruralpay/wallet/internal/identity"
	"github.com/ruralpay/wallet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testJWT    = config.JWTConfig{SecretKey: "test-secret", Expiry: 24 * time.Hour}
	testArgon2 = config.Argon2Config{Time: 1, Memory: 1024, Threads: 1, KeyLength: 32, SaltLength: 16}
)

func postJSON(handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(payload))
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func parseClaims(t *testing.T, token string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return []byte(testJWT.SecretKey), nil })
	require.NoError(t, err)
	return parsed.Claims.(jwt.MapClaims)
}

func TestAuthService_Register(t *testing.T) {
	service := NewAuthService(identity.NewMemoryDirectory(), nil, testJWT, testArgon2)

	t.Run("successful registration", func(t *testing.T) {
		w := postJSON(service.Register, "/auth/register", RegisterRequest{Username: "Alice", Password: "password123"})

		assert.Equal(t, http.StatusCreated, w.Code)
		var response AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, "alice", response.User.Username)
		assert.Equal(t, models.RoleUser, response.User.Role)

		claims := parseClaims(t, response.Token)
		assert.Equal(t, response.User.ID, claims["user_id"])
		assert.Equal(t, models.RoleUser, claims["role"])
	})

	t.Run("duplicate username", func(t *testing.T) {
		w := postJSON(service.Register, "/auth/register", RegisterRequest{Username: "alice", Password: "password456"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		w := postJSON(service.Register, "/auth/register", map[string]string{
			"username": "bob", "password": "password123", "role": "admin",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("multiple objects", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/auth/register",
			bytes.NewBufferString(`{"username":"bob","password":"password123"}{}`))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "single JSON object")
	})

	t.Run("validation details", func(t *testing.T) {
		w := postJSON(service.Register, "/auth/register", RegisterRequest{Username: "b!", Password: "123"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response.Details, "Username")
		assert.Contains(t, response.Details, "Password")
	})
}

func TestAuthService_Login(t *testing.T) {
	users := identity.NewMemoryDirectory()
	service := NewAuthService(users, nil, testJWT, testArgon2)

	hashedPassword, err := service.hashPassword("password123")
	require.NoError(t, err)
	user, err := users.CreateUser(context.Background(), "alice", hashedPassword, models.RoleUser)
	require.NoError(t, err)

	t.Run("successful login", func(t *testing.T) {
		w := postJSON(service.Login, "/auth/login", LoginRequest{Username: "ALICE", Password: "password123"})

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, user.ID, response.User.ID)
		assert.NotContains(t, w.Body.String(), hashedPassword)

		claims := parseClaims(t, response.Token)
		assert.Equal(t, user.ID, claims["user_id"])
	})

	t.Run("wrong password", func(t *testing.T) {
		w := postJSON(service.Login, "/auth/login", LoginRequest{Username: "alice", Password: "wrongpassword"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := postJSON(service.Login, "/auth/login", LoginRequest{Username: "mallory", Password: "password123"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_Logout(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	service := NewAuthService(identity.NewMemoryDirectory(), rdb, testJWT, testArgon2)

	mock.ExpectSet("blacklist:some.jwt.token", "1", 24*time.Hour).SetVal("OK")

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.Header.Set("Authorization", "Bearer some.jwt.token")
	w := httptest.NewRecorder()

	service.Logout(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Logout successful")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	ctx := context.Background()
	users := identity.NewMemoryDirectory()
	service := NewAuthService(users, nil, testJWT, testArgon2)

	require.NoError(t, service.EnsureAdmin(ctx, "root", "changeme"))
	admin, err := users.ResolveUserByName(ctx, "root")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
	assert.True(t, service.verifyPassword("changeme", admin.PasswordHash))

	require.NoError(t, service.EnsureAdmin(ctx, "root", "other-password"))
	again, err := users.ResolveUserByName(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
	assert.True(t, service.verifyPassword("changeme", again.PasswordHash))
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	service := NewAuthService(identity.NewMemoryDirectory(), nil, testJWT, testArgon2)
	assert.False(t, service.verifyPassword("password123", "no-separator"))
	assert.False(t, service.verifyPassword("password123", "!!!$???"))
}
