package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruralpay/wallet/internal/config"
	"github.com/ruralpay/wallet/internal/fraud"
	"github.com/ruralpay/wallet/internal/identity"
	"github.com/ruralpay/wallet/internal/ledger"
	mW "github.com/ruralpay/wallet/internal/middleware"
	"github.com/ruralpay/wallet/internal/models"
	"github.com/ruralpay/wallet/internal/money"
	"github.com/ruralpay/wallet/internal/notify"
	"github.com/ruralpay/wallet/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	routes  RouterConfig
	store   *ledger.MemoryStore
	users   *identity.MemoryDirectory
	sent    []notify.Message
}

func (s *testServer) Notify(_ context.Context, msg notify.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{store: ledger.NewMemoryStore(), users: identity.NewMemoryDirectory()}

	jwtConfig := config.JWTConfig{SecretKey: "test-secret", Expiry: time.Hour}
	argon2Config := config.Argon2Config{Time: 1, Memory: 1024, Threads: 1, KeyLength: 32, SaltLength: 16}
	auth := services.NewAuthService(s.users, nil, jwtConfig, argon2Config)
	require.NoError(t, auth.EnsureAdmin(context.Background(), "root", "rootpass"))

	engine := services.NewWalletEngine(s.store, s.users, fraud.NewEvaluator(fraud.DefaultConfig()), s)
	reports := services.NewReportService(s.store, s.users)

	s.routes = RouterConfig{
		Auth:          auth,
		Authenticator: mW.NewAuthenticator(jwtConfig.SecretKey, nil),
		Wallet:        NewWalletHandler(engine, reports, services.NewQRService(s.users), "INR"),
		Admin:         NewAdminHandler(reports, services.NewReviewService(s.store, nil)),
	}
	s.handler = NewRouter(s.routes)
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func (s *testServer) register(t *testing.T, username string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": username, "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp services.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp services.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestWalletRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")
	s.register(t, "bob")

	t.Run("requires a token", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/wallet/summary", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("deposit uses the default currency", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/wallet/deposit", alice, `{"amount": 1000.50}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[map[string]any](t, w)
		assert.Equal(t, "Deposit successful (INR)", resp["msg"])
		assert.Equal(t, 1000.50, resp["new_balance"])
		assert.NotEmpty(t, resp["transaction_id"])
	})

	t.Run("invalid amount", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/wallet/deposit", alice, `{"amount": 0}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "amount must be greater than zero")

		w = s.do(t, http.MethodPost, "/api/v1/wallet/deposit", alice, `{"amount": "1.005"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid currency", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/wallet/deposit", alice, `{"amount": 1, "currency": "RUPEE"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("withdraw more than the balance", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/wallet/withdraw", alice, `{"amount": 5000, "currency": "INR"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "insufficient balance", decode[services.ErrorResponse](t, w).Error)
	})

	t.Run("withdraw", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/wallet/withdraw", alice, `{"amount": "0.50", "currency": "inr"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[map[string]any](t, w)
		assert.Equal(t, "Withdrawal successful (INR)", resp["msg"])
		assert.Equal(t, 1000.0, resp["new_balance"])
		assert.Equal(t, false, resp["flagged"])
	})

	t.Run("transfer", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/wallet/transfer", alice, `{"amount": 250, "to": "bob"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[map[string]any](t, w)
		assert.Equal(t, "Transferred 250.00 INR to bob successfully", resp["msg"])
		assert.Equal(t, 750.0, resp["new_balance"])
	})

	t.Run("transfer to unknown user", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/wallet/transfer", alice, `{"amount": 1, "to": "nobody"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("transfer without recipient", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/wallet/transfer", alice, `{"amount": 1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[services.ErrorResponse](t, w).Details, "To")
	})

	t.Run("summary", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/wallet/summary", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		summary := decode[services.WalletSummary](t, w)
		assert.Equal(t, "alice", summary.Username)
		assert.Equal(t, []services.WalletBalance{{Currency: "INR", Balance: money.FromMajor(750)}}, summary.Wallets)
	})

	t.Run("transactions", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/wallet/transactions?limit=2", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		history := decode[[]services.HistoryEntry](t, w)
		require.Len(t, history, 2)
		assert.Equal(t, models.KindTransfer, history[0].Type)
		assert.Equal(t, "bob", history[0].To)

		w = s.do(t, http.MethodGet, "/api/v1/wallet/transactions?limit=abc", alice, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("receive qr", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/wallet/receive-qr?amount=10", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		code := decode[services.ReceiveCode](t, w)
		assert.Equal(t, "wallet:transfer?to=alice&currency=INR&amount=10.00", code.Payload)
		assert.NotEmpty(t, code.QRImage)

		w = s.do(t, http.MethodGet, "/api/v1/wallet/receive-qr?amount=ten", alice, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("admin routes are refused", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/admin/top-users", alice, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")
	s.register(t, "bob")
	admin := s.login(t, "root", "rootpass")

	w := s.do(t, http.MethodPost, "/api/v1/wallet/deposit", alice, `{"amount": 60000}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/wallet/withdraw", alice, `{"amount": 50000}`)
	require.Equal(t, http.StatusOK, w.Code)
	flaggedID := decode[services.WithdrawResult](t, w).TransactionID
	require.Len(t, s.sent, 1)
	assert.Equal(t, "Fraud Alert: Large Withdrawal", s.sent[0].Subject)

	w = s.do(t, http.MethodPost, "/api/v1/wallet/transfer", alice, `{"amount": 100, "to": "bob"}`)
	require.Equal(t, http.StatusOK, w.Code)
	plainID := decode[services.TransferResult](t, w).TransactionID

	t.Run("flagged transactions", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/admin/flagged-transactions", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		flagged := decode[[]services.FlaggedTransaction](t, w)
		require.Len(t, flagged, 1)
		assert.Equal(t, flaggedID, flagged[0].TransactionID)
		assert.Equal(t, "alice", flagged[0].User)
		assert.Equal(t, models.ReviewPending, flagged[0].ReviewStatus)
	})

	t.Run("top users", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/admin/top-users", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		top := decode[[]services.TopUser](t, w)
		require.Len(t, top, 2)
		assert.Equal(t, "alice", top[0].Username)
		assert.Equal(t, money.FromMajor(9900), top[0].TotalBalance)
	})

	t.Run("total balances", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/admin/total-balances", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"INR": 10000.00}`, w.Body.String())
	})

	t.Run("review errors", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/admin/review-flagged", admin,
			map[string]string{"txn_id": "missing", "status": "approved"})
		assert.Equal(t, http.StatusBadRequest, w.Code, "status is checked before the lookup")

		w = s.do(t, http.MethodPost, "/api/v1/admin/review-flagged", admin,
			map[string]string{"txn_id": "missing", "status": "cleared"})
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = s.do(t, http.MethodPost, "/api/v1/admin/review-flagged", admin,
			map[string]string{"txn_id": plainID, "status": "cleared"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "transaction is not flagged", decode[services.ErrorResponse](t, w).Error)
	})

	t.Run("review", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/admin/review-flagged", admin,
			map[string]string{"txn_id": flaggedID, "status": "rejected", "review_comment": "confirmed fraud"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[ReviewResponse](t, w)
		assert.Equal(t, "Transaction marked as rejected.", resp.Message)
		assert.Equal(t, "confirmed fraud", resp.ReviewComment)

		txn, err := s.store.GetTransaction(context.Background(), flaggedID)
		require.NoError(t, err)
		assert.Equal(t, models.ReviewRejected, txn.ReviewStatus)
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	routes := s.routes
	routes.Health = func(*http.Request) error { return errors.New("database unreachable") }
	s.handler = NewRouter(routes)

	w = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database unreachable")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrInvalidAmount, http.StatusBadRequest},
		{fmt.Errorf("%w: RUPEE", services.ErrInvalidCurrency), http.StatusBadRequest},
		{services.ErrInvalidRecipient, http.StatusBadRequest},
		{services.ErrInsufficientFunds, http.StatusBadRequest},
		{fmt.Errorf("%w: bigint out of range", services.ErrBalanceLimit), http.StatusBadRequest},
		{services.ErrInvalidStatus, http.StatusBadRequest},
		{services.ErrNotFlagged, http.StatusBadRequest},
		{fmt.Errorf("%w: transaction", services.ErrNotFound), http.StatusNotFound},
		{services.ErrTransientConflict, http.StatusConflict},
		{fmt.Errorf("%w: %w", services.ErrStorageUnavailable, errors.New("dial tcp")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
