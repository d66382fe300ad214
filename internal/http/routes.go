package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rps_wager/internal/http/handlers"
	"rps_wager/internal/http/middleware"
	"rps_wager/internal/service"
	"rps_wager/internal/ws"
)

// Deps are what the router needs from the running process.
type Deps struct {
	Engine   *service.MatchService
	Verifier *service.TokenVerifier
	Hub      *ws.Hub
	Health   *handlers.HealthHandler
	// Limiter may be nil; requests are then not rate limited.
	Limiter *middleware.RedisRateLimiter
	Logger  *slog.Logger

	APIRateLimit  int
	APIRateWindow time.Duration
	AllowedOrigin string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := handlers.NewHandler(d.Engine, d.Logger)

	// Health checks (no rate limiting)
	r.GET("/health", d.Health.Health)
	r.GET("/healthz", d.Health.Liveness)
	r.GET("/readyz", d.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWT(d.Verifier), d.Limiter.Limit(d.APIRateLimit, d.APIRateWindow))
	registerAPIRoutes(v1, h)

	r.GET("/ws", ws.HandleWS(d.Hub, d.Verifier, d.Engine, d.AllowedOrigin, d.Logger))
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler) {
	api.GET("/me", h.Me)
	api.GET("/me/ledger", h.MyLedger)

	matches := api.Group("/matches")
	{
		matches.POST("", h.CreateMatch)
		matches.GET("/open", h.OpenMatches)
		matches.GET("/:id", h.GetMatch)
		matches.POST("/:id/join", h.JoinMatch)
		matches.POST("/:id/move", h.SubmitMove)
		matches.POST("/:id/cancel", h.CancelMatch)
		matches.POST("/:id/rematch", h.RequestRematch)
		matches.POST("/:id/rematch/decline", h.DeclineRematch)
	}
}
