package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"rps_wager/internal/logger"

	"github.com/joho/godotenv"
)

// Store backends selectable through STORE.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Auto-move payout policies.
const (
	PayoutFull   = "full"
	PayoutRefund = "refund"
)

type Config struct {
	AppPort     string
	DatabaseURL string
	JWTSecret   string

	Store         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Wallet and stakes
	InitialCoins int64
	MinStake     int64
	MaxStake     int64

	// Timings
	MoveTimeout       time.Duration
	StaleWaiting      time.Duration
	FinishedRetention time.Duration
	SweepInterval     time.Duration

	AutoMovePayout string

	APIRateLimit  int
	APIRateWindow int

	AllowedOrigin string

	LogLevel string
	LogJSON  bool
}

// Загрузка конфига из env
func Load() *Config {
	_ = godotenv.Load()

	// only commands that handle tokens need it; see RequireJWTSecret
	jwtSecret := os.Getenv("JWT_SECRET")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	redisAddr := os.Getenv("REDIS_ADDR")

	store := strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	switch store {
	case "":
		// без явного выбора: postgres если задан DSN, иначе память
		store = StoreMemory
		if dbURL != "" {
			store = StorePostgres
		}
	case StoreMemory:
	case StoreRedis:
		if redisAddr == "" {
			logger.Fatal("STORE=redis requires REDIS_ADDR")
		}
	case StorePostgres:
		if dbURL == "" {
			logger.Fatal("STORE=postgres requires DATABASE_URL")
		}
	default:
		logger.Fatal("unknown STORE", "store", store)
	}

	payout := strings.ToLower(os.Getenv("AUTO_MOVE_PAYOUT"))
	if payout != PayoutRefund {
		payout = PayoutFull
	}

	cfg := &Config{
		AppPort:       port,
		DatabaseURL:   dbURL,
		JWTSecret:     jwtSecret,
		Store:         store,
		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intEnv("REDIS_DB", 0),

		InitialCoins: int64Env("INITIAL_COINS", 100),
		MinStake:     int64Env("MIN_STAKE", 1),
		MaxStake:     int64Env("MAX_STAKE", 100000), // максимум 100к

		MoveTimeout:       secondsEnv("MOVE_TIMEOUT_SECONDS", 10),
		StaleWaiting:      secondsEnv("STALE_WAITING_SECONDS", 600),
		FinishedRetention: secondsEnv("FINISHED_RETENTION_SECONDS", 3600),
		SweepInterval:     secondsEnv("SWEEP_INTERVAL_SECONDS", 30),

		AutoMovePayout: payout,

		APIRateLimit:  intEnv("API_RATE_LIMIT", 60), // макс действий за ->
		APIRateWindow: intEnv("API_RATE_WINDOW_SECONDS", 60),

		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),

		LogLevel: strings.ToLower(os.Getenv("LOG_LEVEL")),
		LogJSON:  os.Getenv("LOG_JSON") == "true",
	}

	if cfg.MinStake > cfg.MaxStake {
		logger.Fatal("MIN_STAKE is greater than MAX_STAKE", "min", cfg.MinStake, "max", cfg.MaxStake)
	}
	return cfg
}

// positive values only, anything else falls back to def
func int64Env(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
		logger.Warn("ignoring invalid env value", "key", key, "value", v)
	}
	return def
}

func intEnv(key string, def int) int {
	return int(int64Env(key, int64(def)))
}

func secondsEnv(key string, def int) time.Duration {
	return time.Duration(int64Env(key, int64(def))) * time.Second
}

// ErrJWTSecretMissing is returned by RequireJWTSecret.
var ErrJWTSecretMissing = errors.New("JWT_SECRET is not set")

// RequireJWTSecret fails when no signing secret is configured.
func (c *Config) RequireJWTSecret() error {
	if c.JWTSecret == "" {
		return ErrJWTSecretMissing
	}
	return nil
}
