package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ruralpay/wallet/internal/database"
	"github.com/ruralpay/wallet/internal/fraud"
	"github.com/ruralpay/wallet/internal/money"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	StorageDriver string
	Database      database.DBConfig
	Redis         database.RedisConfig
	JWT           JWTConfig
	Argon2        Argon2Config
	Wallet        WalletConfig
	Fraud         fraud.Config
	Notify        NotifyConfig
	Log           LogConfig
	Admin         AdminConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type JWTConfig struct {
	SecretKey string
	Expiry    time.Duration
}

type Argon2Config struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

type WalletConfig struct {
	DefaultCurrency string
	// MaxAttempts bounds how often a mutation is retried after a concurrency conflict.
	MaxAttempts int
}

type NotifyConfig struct {
	Driver       string // log, redis or kafka
	AdminEmail   string
	RedisKey     string
	KafkaBrokers []string
	KafkaTopic   string
	Timeout      time.Duration
}

// AdminConfig bootstraps the first administrator; empty means none is created.
type AdminConfig struct {
	Username string
	Password string
}

type LogConfig struct {
	Level  string
	Format string // text or json
}

var envBindings = map[string]string{
	"server.port":                      "PORT",
	"storage.driver":                   "STORAGE_DRIVER",
	"database.host":                    "DATABASE_HOST",
	"database.port":                    "DATABASE_PORT",
	"database.user":                    "DATABASE_USER",
	"database.password":                "DATABASE_PASSWORD",
	"database.name":                    "DATABASE_NAME",
	"database.ssl_mode":                "DATABASE_SSL_MODE",
	"redis.host":                       "REDIS_HOST",
	"redis.port":                       "REDIS_PORT",
	"redis.password":                   "REDIS_PASSWORD",
	"redis.db":                         "REDIS_DB",
	"jwt.secret_key":                   "JWT_SECRET_KEY",
	"jwt.expiry_hours":                 "JWT_EXPIRY_HOURS",
	"argon2.time":                      "ARGON2_TIME",
	"argon2.memory":                    "ARGON2_MEMORY",
	"argon2.threads":                   "ARGON2_THREADS",
	"argon2.key_length":                "ARGON2_KEY_LENGTH",
	"argon2.salt_length":               "ARGON2_SALT_LENGTH",
	"wallet.default_currency":          "WALLET_DEFAULT_CURRENCY",
	"engine.max_attempts":              "ENGINE_MAX_ATTEMPTS",
	"fraud.large_withdrawal_threshold": "FRAUD_LARGE_WITHDRAWAL_THRESHOLD",
	"fraud.transfer_window":            "FRAUD_TRANSFER_WINDOW",
	"fraud.transfer_burst_limit":       "FRAUD_TRANSFER_BURST_LIMIT",
	"notify.driver":                    "NOTIFY_DRIVER",
	"notify.admin_email":               "NOTIFY_ADMIN_EMAIL",
	"notify.redis_key":                 "NOTIFY_REDIS_KEY",
	"notify.kafka_brokers":             "NOTIFY_KAFKA_BROKERS",
	"notify.kafka_topic":               "NOTIFY_KAFKA_TOPIC",
	"notify.timeout":                   "NOTIFY_TIMEOUT",
	"log.level":                        "LOG_LEVEL",
	"log.format":                       "LOG_FORMAT",
	"admin.username":                   "ADMIN_USERNAME",
	"admin.password":                   "ADMIN_PASSWORD",
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.request_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "postgres")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "wallet")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("jwt.expiry_hours", 24)

	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	viper.SetDefault("wallet.default_currency", "INR")
	viper.SetDefault("engine.max_attempts", 3)

	viper.SetDefault("fraud.large_withdrawal_threshold", "50000.00")
	viper.SetDefault("fraud.transfer_window", fraud.DefaultTransferWindow)
	viper.SetDefault("fraud.transfer_burst_limit", fraud.DefaultTransferBurstLimit)

	viper.SetDefault("notify.driver", "log")
	viper.SetDefault("notify.admin_email", "admin@wallet.local")
	viper.SetDefault("notify.redis_key", "wallet:notifications")
	viper.SetDefault("notify.kafka_brokers", "localhost:9092")
	viper.SetDefault("notify.kafka_topic", "wallet.notifications")
	viper.SetDefault("notify.timeout", 5*time.Second)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

// Load reads .env (if present) and the environment into a Config.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("[CONFIG] Config file not found, using defaults: %v", err)
	}

	threshold, err := money.ParseAmount(viper.GetString("fraud.large_withdrawal_threshold"))
	if err != nil || !threshold.IsPositive() {
		return nil, fmt.Errorf("fraud.large_withdrawal_threshold: invalid amount %q", viper.GetString("fraud.large_withdrawal_threshold"))
	}

	currency, err := money.NormalizeCurrency(viper.GetString("wallet.default_currency"))
	if err != nil {
		return nil, fmt.Errorf("wallet.default_currency: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            viper.GetString("server.port"),
			ReadTimeout:     viper.GetDuration("server.read_timeout"),
			WriteTimeout:    viper.GetDuration("server.write_timeout"),
			RequestTimeout:  viper.GetDuration("server.request_timeout"),
			ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
		},
		StorageDriver: strings.ToLower(viper.GetString("storage.driver")),
		Database: database.DBConfig{
			Host:            viper.GetString("database.host"),
			Port:            viper.GetString("database.port"),
			User:            viper.GetString("database.user"),
			Password:        viper.GetString("database.password"),
			Name:            viper.GetString("database.name"),
			SSLMode:         viper.GetString("database.ssl_mode"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Redis: database.RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey: viper.GetString("jwt.secret_key"),
			Expiry:    time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour,
		},
		Argon2: Argon2Config{
			Time:       viper.GetUint32("argon2.time"),
			Memory:     viper.GetUint32("argon2.memory"),
			Threads:    uint8(viper.GetUint("argon2.threads")),
			KeyLength:  viper.GetUint32("argon2.key_length"),
			SaltLength: viper.GetUint32("argon2.salt_length"),
		},
		Wallet: WalletConfig{
			DefaultCurrency: currency,
			MaxAttempts:     viper.GetInt("engine.max_attempts"),
		},
		Fraud: fraud.Config{
			LargeWithdrawalThreshold: threshold,
			TransferWindow:           viper.GetDuration("fraud.transfer_window"),
			TransferBurstLimit:       viper.GetInt("fraud.transfer_burst_limit"),
		},
		Notify: NotifyConfig{
			Driver:       strings.ToLower(viper.GetString("notify.driver")),
			AdminEmail:   viper.GetString("notify.admin_email"),
			RedisKey:     viper.GetString("notify.redis_key"),
			KafkaBrokers: splitList(viper.GetString("notify.kafka_brokers")),
			KafkaTopic:   viper.GetString("notify.kafka_topic"),
			Timeout:      viper.GetDuration("notify.timeout"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: strings.ToLower(viper.GetString("log.format")),
		},
		Admin: AdminConfig{
			Username: viper.GetString("admin.username"),
			Password: viper.GetString("admin.password"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.StorageDriver)
	}
	switch c.Notify.Driver {
	case "log", "redis", "kafka":
	default:
		return fmt.Errorf("notify.driver: unknown driver %q", c.Notify.Driver)
	}
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secret_key is required")
	}
	if c.Admin.Username != "" && len(c.Admin.Password) < 6 {
		return fmt.Errorf("admin.password must be at least 6 characters")
	}
	if c.Wallet.MaxAttempts < 1 {
		return fmt.Errorf("engine.max_attempts must be at least 1")
	}
	return nil
}

// ConfigureLogging applies the log level and format to the standard logrus logger.
func ConfigureLogging(c LogConfig) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		log.Printf("[CONFIG] Unknown log level %q, using info", c.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
