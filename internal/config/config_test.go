package config_test

import (
	"log/slog"
	"testing"
	"time"

	"localshop/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serverKeys = []string{
	"PORT", "DATABASE_URL", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
	"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_SSLMODE", "JWT_SECRET",
	"GO_ENV", "FE_URL", "REDIS_ADDR", "LOG_LEVEL", "SEED_DEV",
}

var clientKeys = []string{
	"API_BASE_URL", "CART_STORE", "CART_DIR", "CART_DSN", "SYNC_DEBOUNCE",
	"SYNC_INITIAL_BACKOFF", "HTTP_TIMEOUT", "SYNC_MAX_ATTEMPTS", "LOG_LEVEL",
}

// 空文字は未設定と同じ扱い
func clearEnv(t *testing.T, keys []string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func setPostgres(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_USER", "app")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "localshop")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "5432")
}

func TestLoad_FromPostgresVars(t *testing.T) {
	clearEnv(t, serverKeys)
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_SECRET", "s")
	setPostgres(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=localshop sslmode=disable", cfg.DSN())
	assert.Equal(t, "dev", cfg.GoEnv)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	// devは既定で商品を投入
	assert.True(t, cfg.SeedDev)
}

// DATABASE_URLがあればPOSTGRES_*は不要
func TestLoad_DatabaseURLWins(t *testing.T) {
	clearEnv(t, serverKeys)
	t.Setenv("PORT", ":9000")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("DATABASE_URL", "postgres://u:p@h:5432/d")
	t.Setenv("GO_ENV", "prod")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, "postgres://u:p@h:5432/d", cfg.DSN())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.SeedDev)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		set  map[string]string
		want string
	}{
		{"noPort", map[string]string{"JWT_SECRET": "s"}, "PORT is required"},
		{"noSecret", map[string]string{"PORT": "8080"}, "JWT_SECRET is required"},
		{"noPgPort", map[string]string{"PORT": "8080", "JWT_SECRET": "s"}, "POSTGRES_PORT is required"},
		{"badPgPort", map[string]string{"PORT": "8080", "JWT_SECRET": "s", "POSTGRES_PORT": "x"}, "POSTGRES_PORT must be number"},
		{"badLevel", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"badSeed", map[string]string{"SEED_DEV": "maybe"}, "SEED_DEV must be bool"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t, serverKeys)
			for k, v := range tc.set {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadClient_Defaults(t *testing.T) {
	clearEnv(t, clientKeys)

	cfg, err := config.LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
	assert.Equal(t, config.CartStoreFile, cfg.CartStore)
	assert.Equal(t, 800*time.Millisecond, cfg.SyncDebounce)
	assert.Equal(t, 3, cfg.SyncMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncInitialBackoff)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.NotEmpty(t, cfg.CartDir)
}

func TestLoadClient_Overrides(t *testing.T) {
	clearEnv(t, clientKeys)
	t.Setenv("CART_STORE", "sqlite")
	t.Setenv("CART_DSN", "/tmp/cart.db")
	t.Setenv("SYNC_DEBOUNCE", "50ms")
	t.Setenv("SYNC_MAX_ATTEMPTS", "5")

	cfg, err := config.LoadClient()
	require.NoError(t, err)
	assert.Equal(t, config.CartStoreSQLite, cfg.CartStore)
	assert.Equal(t, "/tmp/cart.db", cfg.CartDSN)
	assert.Equal(t, 50*time.Millisecond, cfg.SyncDebounce)
	assert.Equal(t, 5, cfg.SyncMaxAttempts)
}

func TestLoadClient_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"store":    {"CART_STORE": "s3"},
		"attempts": {"SYNC_MAX_ATTEMPTS": "0"},
		"debounce": {"SYNC_DEBOUNCE": "soon"},
		"negative": {"HTTP_TIMEOUT": "-1s"},
	}
	for name, set := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t, clientKeys)
			for k, v := range set {
				t.Setenv(k, v)
			}
			_, err := config.LoadClient()
			assert.Error(t, err)
		})
	}
}
