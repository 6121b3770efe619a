package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"localshop/internal/config"
	"localshop/internal/handler"
	"localshop/internal/infra/cache"
	"localshop/internal/infra/db"
	infraRepo "localshop/internal/infra/repository"
	repo "localshop/internal/repository"
	"localshop/internal/server"
	"localshop/internal/usecase"
	"localshop/internal/validator"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .envは無くてもよい（本番は環境変数）
	_ = godotenv.Load(".env", "../.env")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	if err := db.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if cfg.SeedDev {
		if err := db.SeedDev(gormDB); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info("dev products seeded")
	}

	//カートの読み取りキャッシュ
	var cartCache repo.CartCache = cache.NoopCartCache{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, cart cache disabled", slog.String("addr", cfg.RedisAddr), slog.Any("err", err))
		} else {
			cartCache = cache.NewRedisCartCache(rdb)
		}
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(cfg, userRepo, validator.NewAuthValidator(userRepo))
	productUC := usecase.NewProductUsecase(productRepo, auditRepo)
	cartUC := usecase.NewCartUsecase(txm, cartRepo, cartRepo, cartCache, logger)
	auditUC := usecase.NewAuditUsecase(auditRepo)

	//Handler生成
	e := server.New(cfg, logger, userRepo, server.Handlers{
		Auth:         handler.NewAuthHandler(authUC),
		Product:      handler.NewProductHandler(productUC),
		Cart:         handler.NewCartHandler(cartUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		AdminAudit:   handler.NewAdminAuditHandler(auditUC),
		Health:       handler.NewHealthHandler(sqlDB),
	})

	logger.Info("configuration loaded",
		slog.String("env", cfg.GoEnv),
		slog.Bool("redis", cfg.RedisAddr != ""),
	)

	return server.Start(ctx, e, cfg.Addr(), logger)
}
