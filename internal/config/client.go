package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	CartStoreFile   = "file"
	CartStoreSQLite = "sqlite"
)

// shopper（端末クライアント）の設定
type ClientConfig struct {
	APIBaseURL string

	CartStore string // file / sqlite
	CartDir   string // file のときの保存先
	CartDSN   string // sqlite のときのDSN

	SyncDebounce       time.Duration
	SyncMaxAttempts    int
	SyncInitialBackoff time.Duration
	HTTPTimeout        time.Duration

	LogLevel slog.Level
}

func LoadClient() (ClientConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaultDir := filepath.Join(home, ".localshop")

	cfg := ClientConfig{
		APIBaseURL: getenv("API_BASE_URL", "http://localhost:8080/api"),
		CartStore:  getenv("CART_STORE", CartStoreFile),
		CartDir:    getenv("CART_DIR", defaultDir),
		CartDSN:    getenv("CART_DSN", filepath.Join(defaultDir, "cart.db")),
	}

	if cfg.SyncDebounce, err = parseDuration("SYNC_DEBOUNCE", 800*time.Millisecond); err != nil {
		return ClientConfig{}, err
	}
	if cfg.SyncInitialBackoff, err = parseDuration("SYNC_INITIAL_BACKOFF", 250*time.Millisecond); err != nil {
		return ClientConfig{}, err
	}
	if cfg.HTTPTimeout, err = parseDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return ClientConfig{}, err
	}

	cfg.SyncMaxAttempts = 3
	if v := os.Getenv("SYNC_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return ClientConfig{}, fmt.Errorf("SYNC_MAX_ATTEMPTS must be a positive number")
		}
		cfg.SyncMaxAttempts = n
	}

	if cfg.LogLevel, err = parseLevel(os.Getenv("LOG_LEVEL")); err != nil {
		return ClientConfig{}, err
	}

	switch cfg.CartStore {
	case CartStoreFile, CartStoreSQLite:
	default:
		return ClientConfig{}, fmt.Errorf("CART_STORE must be %q or %q", CartStoreFile, CartStoreSQLite)
	}

	return cfg, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
