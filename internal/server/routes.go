package server

import (
	"time"

	"localshop/internal/config"
	"localshop/internal/handler"
	"localshop/internal/middleware"
	"localshop/internal/repository"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

type Handlers struct {
	Auth         *handler.AuthHandler
	Product      *handler.ProductHandler
	Cart         *handler.CartHandler
	AdminProduct *handler.AdminProductHandler
	AdminAudit   *handler.AdminAuditHandler
	Health       *handler.HealthHandler
}

// 全ルートは /api 配下
func RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository, h Handlers) {
	api := e.Group("/api")

	// bearer必須（JWT検証 → token_version一致）
	auth := []echo.MiddlewareFunc{
		middleware.AuthJWT(cfg),
		middleware.TokenVersionGuard(userRepo),
	}

	// ログイン総当たり対策（IP単位）
	authLimit := echomw.RateLimiter(echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(10),
		Burst:     20,
		ExpiresIn: 3 * time.Minute,
	}))

	h.Health.RegisterRoutes(api)
	h.Auth.RegisterRoutes(api, authLimit, auth...)
	h.Product.RegisterRoutes(api)
	h.Cart.RegisterRoutes(api, auth...)

	admin := api.Group("/admin", append(auth, middleware.AdminRoleGuard())...)
	h.AdminProduct.RegisterRoutes(admin)
	h.AdminAudit.RegisterRoutes(admin)
}
