package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/wallet/docs"
	"github.com/ruralpay/wallet/internal/audit"
	"github.com/ruralpay/wallet/internal/config"
	"github.com/ruralpay/wallet/internal/database"
	"github.com/ruralpay/wallet/internal/fraud"
	"github.com/ruralpay/wallet/internal/handlers"
	"github.com/ruralpay/wallet/internal/identity"
	"github.com/ruralpay/wallet/internal/ledger"
	mW "github.com/ruralpay/wallet/internal/middleware"
	"github.com/ruralpay/wallet/internal/notify"
	"github.com/ruralpay/wallet/internal/services"
	log "github.com/sirupsen/logrus"
)

// @title Wallet Service API
// @version 1.0
// @description Multi-currency digital wallet with deposits, withdrawals, transfers and fraud review
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[CONFIG] Invalid configuration: %v", err)
	}
	config.ConfigureLogging(cfg.Log)

	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port

	ctx := context.Background()

	var (
		db    *sql.DB
		store ledger.Store
		users identity.Directory
	)
	switch cfg.StorageDriver {
	case "postgres":
		db, err = database.InitDB(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("[DB] %v", err)
		}
		defer db.Close()

		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("[DB] Migration failed: %v", err)
		}
		store = ledger.NewPostgresStore(db)
		users = identity.NewPostgresDirectory(db)
	default:
		log.Warn("[DB] Using in-memory storage, all data is lost on restart")
		store = ledger.NewMemoryStore()
		users = identity.NewMemoryDirectory()
	}

	redisClient := database.InitRedis(ctx, cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	notifier, closeNotifier := newNotifier(cfg.Notify, redisClient)
	dispatcher := notify.NewAsync(notifier, cfg.Notify.Timeout)
	auditLogger := audit.NewLogger(nil)

	evaluator := fraud.NewEvaluator(cfg.Fraud)
	rules := evaluator.Config()
	log.Printf("[FRAUD] Flagging withdrawals from %s and more than %d transfers per %s",
		rules.LargeWithdrawalThreshold, rules.TransferBurstLimit, rules.TransferWindow)

	engine := services.NewWalletEngine(store, users, evaluator, dispatcher,
		services.WithMaxAttempts(cfg.Wallet.MaxAttempts),
		services.WithAdminEmail(cfg.Notify.AdminEmail),
		services.WithAuditLogger(auditLogger),
	)
	reportService := services.NewReportService(store, users)
	reviewService := services.NewReviewService(store, auditLogger)
	qrService := services.NewQRService(users)
	authService := services.NewAuthService(users, redisClient, cfg.JWT, cfg.Argon2)

	if cfg.Admin.Username != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
			log.Fatalf("[AUTH] Failed to create admin account: %v", err)
		}
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:          authService,
		Authenticator: mW.NewAuthenticator(cfg.JWT.SecretKey, redisClient),
		Wallet:        handlers.NewWalletHandler(engine, reportService, qrService, cfg.Wallet.DefaultCurrency),
		Admin:         handlers.NewAdminHandler(reportService, reviewService),
		Health: func(r *http.Request) error {
			if db != nil {
				return db.PingContext(r.Context())
			}
			return nil
		},
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s (storage=%s, notify=%s)", cfg.Server.Port, cfg.StorageDriver, cfg.Notify.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	dispatcher.Wait()
	if err := closeNotifier(); err != nil {
		log.Printf("[NOTIFY] Close failed: %v", err)
	}

	log.Println("Server stopped")
}

// newNotifier builds the configured delivery backend and its cleanup func.
func newNotifier(cfg config.NotifyConfig, redisClient *redis.Client) (notify.Notifier, func() error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "redis":
		if redisClient == nil {
			log.Warn("[NOTIFY] Redis unavailable, falling back to log delivery")
			return notify.NewLogNotifier(nil), noop
		}
		return notify.NewRedisNotifier(redisClient, cfg.RedisKey), noop
	case "kafka":
		n := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		return n, n.Close
	default:
		return notify.NewLogNotifier(nil), noop
	}
}
