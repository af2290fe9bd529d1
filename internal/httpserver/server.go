package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PratikDhanave/event-counter-service/internal/handlers"
	"github.com/PratikDhanave/event-counter-service/internal/metrics"
	"github.com/PratikDhanave/event-counter-service/internal/requestid"
)

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Ingest  handlers.Ingester
	Stats   handlers.CounterReader
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Ready maps a dependency name to its health check.
	Ready map[string]Pinger
	// RateLimit is the ingestion budget in requests per second; <= 0 disables it.
	RateLimit int
}

// NewRouter wires public endpoints and the versioned API.
// Public: /health, /ready, /metrics
// API:    POST /api/v1/event, GET /api/v1/stats/:event_type
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestid.Middleware(), AccessLog(logger))

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms every backend pool can serve a round trip.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, p := range d.Ready {
			if err := p.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "dependency": name})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	api := r.Group("/api/v1")

	ingestGroup := api.Group("/")
	if d.RateLimit > 0 {
		ingestGroup.Use(RateLimit(d.RateLimit))
	}
	handlers.RegisterEventRoutes(ingestGroup, d.Ingest, logger)
	handlers.RegisterStatsRoutes(api, d.Stats, logger)

	return r
}

// NewHTTPServer wraps handler with conservative timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
