package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campushub/accounts/internal/auth"
	"github.com/campushub/accounts/internal/config"
	"github.com/campushub/accounts/internal/db"
	httpx "github.com/campushub/accounts/internal/http"
	"github.com/campushub/accounts/internal/observability"
	repo "github.com/campushub/accounts/internal/repo/mongo"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// tracing (optional, on when an endpoint is configured)

	if cfg.OTELEndpoint != "" {
		ctx, cancel := config.WithTimeout(5 * time.Second)

		shutdownTracer, err := observability.InitTracer(ctx, "accounts", cfg.OTELEndpoint)

		cancel()

		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()
				_ = shutdownTracer(ctx)
			}()
		}
	}

	// document store

	client, err := db.Connect(cfg.MongoURI)

	if err != nil {
		log.Error("mongo connection failed", "err", err)
		os.Exit(1)
	}

	defer func() {
		ctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}()

	usersCol := client.Database(cfg.DBName).Collection("users")

	{
		ctx, cancel := config.WithTimeout(10 * time.Second)

		err = db.EnsureUserIndexes(ctx, usersCol)

		cancel()

		if err != nil {
			log.Error("index creation failed", "err", err)
			os.Exit(1)
		}
	}

	// redis backs the credential-endpoint rate limiter

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	defer func() { _ = rdb.Close() }()

	// metrics

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	usersRepo := repo.NewUsersRepo(usersCol, prom)

	jwtManager := auth.NewManager(
		cfg.AccessTokenSecret,
		cfg.RefreshTokenSecret,
		cfg.AccessTokenExpiry,
		cfg.RefreshTokenExpiry,
	)

	ping := func() error {
		ctx, cancel := config.WithTimeout(1 * time.Second)
		defer cancel()

		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			return err
		}

		return rdb.Ping(ctx).Err()
	}

	router := httpx.NewRouter(log, cfg, usersRepo, jwtManager, rdb, prom, ping)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)

		defer cancel()

		err := srv.Shutdown(ctx)

		if err != nil {
			log.Error("graceful shutdown failed", "err", err)

			return
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
