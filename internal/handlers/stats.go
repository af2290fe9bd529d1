package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PratikDhanave/event-counter-service/internal/ingest"
	"github.com/PratikDhanave/event-counter-service/internal/models"
	"github.com/PratikDhanave/event-counter-service/internal/requestid"
)

// CounterReader is satisfied by *cache.RedisCache.
type CounterReader interface {
	GetCounter(ctx context.Context, eventType string) (int64, error)
}

// RegisterStatsRoutes registers the read-path endpoint.
//
// GET /stats/:event_type
// - Reads the rolling counter straight from the cache; Postgres is not touched
// - Returns count 0 for categories never seen or expired
func RegisterStatsRoutes(r gin.IRoutes, counters CounterReader, logger *zap.Logger) {
	r.GET("/stats/:event_type", func(c *gin.Context) {
		eventType := c.Param("event_type")

		count, err := counters.GetCounter(c.Request.Context(), eventType)
		if err != nil {
			ierr := ingest.Classify("get_counter", err, ingest.KindConnection)
			logger.Error("stats query failed",
				zap.String("request_id", requestid.ID(c)),
				zap.String("event_type", eventType),
				zap.String("kind", ierr.Kind.String()),
				zap.Error(ierr),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		c.JSON(http.StatusOK, models.StatsResponse{
			EventType: eventType,
			Count:     count,
		})
	})
}
