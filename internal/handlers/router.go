package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruralpay/wallet/internal/metrics"
	mW "github.com/ruralpay/wallet/internal/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type AuthRoutes interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
}

type RouterConfig struct {
	Auth          AuthRoutes
	Authenticator *mW.Authenticator
	Wallet        *WalletHandler
	Admin         *AdminHandler
	// Health reports readiness of the backing stores; nil means always healthy.
	Health         func(r *http.Request) error
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Instrument)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(req); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", cfg.Auth.Register)
		r.Post("/auth/login", cfg.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Authenticator.Middleware)

			r.Post("/auth/logout", cfg.Auth.Logout)

			r.Post("/wallet/deposit", cfg.Wallet.Deposit)
			r.Post("/wallet/withdraw", cfg.Wallet.Withdraw)
			r.Post("/wallet/transfer", cfg.Wallet.Transfer)
			r.Get("/wallet/summary", cfg.Wallet.Summary)
			r.Get("/wallet/transactions", cfg.Wallet.Transactions)
			r.Get("/wallet/receive-qr", cfg.Wallet.ReceiveQR)

			r.Group(func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Get("/admin/flagged-transactions", cfg.Admin.FlaggedTransactions)
				r.Get("/admin/top-users", cfg.Admin.TopUsers)
				r.Get("/admin/total-balances", cfg.Admin.TotalBalances)
				r.Post("/admin/review-flagged", cfg.Admin.ReviewFlagged)
			})
		})
	})

	return r
}
