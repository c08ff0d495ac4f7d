package http

import (
	"log/slog"

	"github.com/campushub/accounts/internal/auth"
	"github.com/campushub/accounts/internal/config"
	"github.com/campushub/accounts/internal/http/handlers"
	"github.com/campushub/accounts/internal/http/middlewares"
	"github.com/campushub/accounts/internal/observability"
	repo "github.com/campushub/accounts/internal/repo/mongo"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20 // 1 MiB; nothing here uploads files

func NewRouter(
	log *slog.Logger,
	cfg config.Config,
	users *repo.UsersRepo,
	jwtManager *auth.Manager,
	rdb *redis.Client,
	prom *observability.Prom,
	ping func() error,
) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(otelgin.Middleware("accounts"))

	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
	}

	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health + metrics

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// wire up handlers

	authHandler := handlers.NewAuthHandler(users, jwtManager, cfg)
	usersHandler := handlers.NewUsersHandler(users)
	authRequired := middlewares.NewAuthMiddleware(jwtManager, users).RequireAuth()

	api := r.Group("/api/v1/users")

	// only the credential endpoints get throttled, per client IP
	throttled := func(c *gin.Context) { c.Next() }

	if cfg.RateLimit.Enabled && rdb != nil {
		limiter := middlewares.NewRateLimiter(rdb, cfg.RateLimit)
		throttled = limiter.RateLimiterMiddleware(func(c *gin.Context) string {
			return c.ClientIP()
		})
	}

	api.POST("/register", throttled, authHandler.Register)
	api.POST("/login", throttled, authHandler.Login)
	api.POST("/refresh-token", throttled, authHandler.Refresh)

	api.POST("/logout", authRequired, authHandler.Logout)
	api.GET("/current-user", authRequired, usersHandler.CurrentUser)
	api.PATCH("/update-account", authRequired, usersHandler.UpdateAccount)
	api.POST("/change-password", authRequired, usersHandler.ChangePassword)

	return r
}
