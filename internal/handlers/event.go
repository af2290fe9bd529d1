package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PratikDhanave/event-counter-service/internal/ingest"
	"github.com/PratikDhanave/event-counter-service/internal/models"
	"github.com/PratikDhanave/event-counter-service/internal/requestid"
)

// Ingester is satisfied by *ingest.Service.
type Ingester interface {
	Ingest(ctx context.Context, req models.EventIngestRequest) error
}

// RegisterEventRoutes registers the ingestion-path endpoint.
//
// POST /event
// - 202 {"status":"accepted"} once both the durable write and the counter settle
// - 400 naming the offending field for bad input; nothing is written
// - 500 with a generic message for infrastructure failures (details are logged)
func RegisterEventRoutes(r gin.IRoutes, svc Ingester, logger *zap.Logger) {
	r.POST("/event", func(c *gin.Context) {
		var req models.EventIngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": bindErrorMessage(err)})
			return
		}

		err := svc.Ingest(c.Request.Context(), req)
		if err == nil {
			c.JSON(http.StatusAccepted, models.EventIngestResponse{Status: ingest.OutcomeAccepted})
			return
		}

		var ierr *ingest.Error
		if !errors.As(err, &ierr) {
			ierr = ingest.Classify("ingest", err, ingest.KindWrite)
		}
		writeIngestError(c, logger, ierr)
	})
}

func writeIngestError(c *gin.Context, logger *zap.Logger, err *ingest.Error) {
	switch err.Kind {
	case ingest.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Message()})
	case ingest.KindShuttingDown:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		logger.Error("service error",
			zap.String("request_id", requestid.ID(c)),
			zap.String("kind", err.Kind.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// bindErrorMessage turns a decode failure into a client-facing message,
// naming the field when the failure is a type mismatch.
func bindErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field + " must be " + jsonKind(typeErr.Type.Kind().String())
	}
	return "invalid JSON payload"
}

func jsonKind(goKind string) string {
	switch goKind {
	case "int64", "int", "int32":
		return "an integer"
	case "string":
		return "a string"
	case "map":
		return "an object"
	default:
		return goKind
	}
}
