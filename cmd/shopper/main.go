package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"localshop/internal/client/cart"
	"localshop/internal/client/cartapi"
	"localshop/internal/client/cartsync"
	"localshop/internal/client/session"
	"localshop/internal/client/storage"
	"localshop/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env", "../.env")

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// 画面はstdout、ログはstderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var slot storage.Slot
	switch cfg.CartStore {
	case config.CartStoreSQLite:
		s, err := storage.OpenSQLiteSlot(cfg.CartDSN)
		if err != nil {
			return fmt.Errorf("open cart db: %w", err)
		}
		defer s.Close()
		slot = s
	default:
		slot = storage.NewFileSlot(afero.NewOsFs(), cfg.CartDir)
	}

	api := cartapi.New(cfg.APIBaseURL, cartapi.Options{Timeout: cfg.HTTPTimeout, Logger: logger})
	broker := session.NewBroker()
	store := cart.NewStore()

	svc := cartsync.NewService(store, storage.NewGuestCart(slot, logger), api, broker, cartsync.Options{
		Debounce: cfg.SyncDebounce,
		Backoff: cartsync.Backoff{
			MaxAttempts:  cfg.SyncMaxAttempts,
			InitialDelay: cfg.SyncInitialBackoff,
			Factor:       2,
			MaxDelay:     cartsync.DefaultBackoff().MaxDelay,
		},
		Logger: logger,
	})
	defer svc.Close()
	svc.Start(ctx)

	sh := &shell{
		svc:      svc,
		auth:     session.NewAuthenticator(api, broker, logger),
		broker:   broker,
		products: api,
		out:      os.Stdout,
	}

	logger.Debug("shopper started", slog.String("api", cfg.APIBaseURL), slog.String("store", cfg.CartStore))
	fmt.Fprintln(os.Stdout, "LocalShop (type help for commands)")

	err = sh.run(ctx, os.Stdin)

	// 終了前に送信待ちを流す
	svc.FlushSync()
	return err
}
