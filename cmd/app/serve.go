package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"rps_wager/internal/config"
	"rps_wager/internal/domain"
	"rps_wager/internal/events"
	httpServer "rps_wager/internal/http"
	"rps_wager/internal/http/handlers"
	"rps_wager/internal/http/middleware"
	"rps_wager/internal/logger"
	"rps_wager/internal/scheduler"
	"rps_wager/internal/service"
	"rps_wager/internal/ws"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg := config.Load()
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	log := logger.Get()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("store ready", "store", cfg.Store)

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		// pub/sub and rate limiting degrade, matches keep working
		log.Warn("redis unavailable", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	hub := ws.NewHub(logger.Component("ws"))

	// With redis every instance receives events over pub/sub, including its own.
	sinks := []events.Publisher{events.PublisherFunc(func(_ context.Context, ev domain.Event) error {
		log.Debug("event", "type", ev.Type, "match_id", ev.MatchID)
		return nil
	})}
	if rdb != nil {
		rp := events.NewRedisPublisher(rdb, "")
		sinks = append(sinks, rp)
		go func() {
			if err := rp.Subscribe(ctx, hub.Relay); err != nil {
				log.Error("event subscription stopped", "error", err)
			}
		}()
	} else {
		sinks = append(sinks, hub)
	}

	timers := scheduler.NewTimers()
	defer timers.Stop()

	engine := newEngine(store, timers, events.NewFanout(logger.Component("events"), sinks...), cfg)

	n, err := engine.RearmTimers(ctx)
	if err != nil {
		return err
	}
	log.Info("move timers restored", "count", n)

	sweeper, err := scheduler.NewSweeper(cfg.SweepInterval, func(ctx context.Context) error {
		_, err := engine.Sweep(ctx)
		return err
	}, logger.Component("sweep"))
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Shutdown()

	r := gin.Default()
	r.Use(cors(cfg.AllowedOrigin))

	httpServer.RegisterRoutes(r, httpServer.Deps{
		Engine:        engine,
		Verifier:      service.NewTokenVerifier(cfg.JWTSecret),
		Hub:           hub,
		Health:        handlers.NewHealthHandler(store, timers, version),
		Limiter:       middleware.NewRedisRateLimiter(rdb, ""),
		Logger:        logger.Component("http"),
		APIRateLimit:  cfg.APIRateLimit,
		APIRateWindow: time.Duration(cfg.APIRateWindow) * time.Second,
		AllowedOrigin: cfg.AllowedOrigin,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server started", "port", cfg.AppPort, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server exited")
	return nil
}

// CORS for production (frontend on different domain)
func cors(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (allowedOrigin == "" || origin == allowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
