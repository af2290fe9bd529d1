package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/PratikDhanave/event-counter-service/internal/cache"
	"github.com/PratikDhanave/event-counter-service/internal/models"
	"github.com/PratikDhanave/event-counter-service/internal/pool"
	"github.com/PratikDhanave/event-counter-service/internal/store"
)

// Kind classifies why an ingestion did not settle as accepted.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindPoolExhausted
	KindConnection
	KindWrite
	KindCacheCorruption
	KindShuttingDown
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPoolExhausted:
		return "pool_exhausted"
	case KindConnection:
		return "connection"
	case KindWrite:
		return "write"
	case KindCacheCorruption:
		return "cache_corruption"
	case KindShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Error is the only error type Service returns. It has no Unwrap: backend
// error values stay behind this boundary and only their text is kept for logs.
type Error struct {
	Kind Kind
	// Op is the failing operation: "validate", "save_event",
	// "increment_counter", "get_counter" or "ingest".
	Op string
	// Field is set for KindValidation.
	Field string
	msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.msg)
}

// Message is safe to show to the client only for KindValidation.
func (e *Error) Message() string { return e.msg }

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Classify maps an error from a backend operation onto the taxonomy.
// fallback is used for failures that carry no recognised sentinel.
func Classify(op string, err error, fallback Kind) *Error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return already
	}

	var verr *models.ValidationError
	kind := fallback
	switch {
	case errors.As(err, &verr):
		return &Error{Kind: KindValidation, Op: op, Field: verr.Field, msg: verr.Error()}
	case errors.Is(err, pool.ErrExhausted):
		kind = KindPoolExhausted
	case errors.Is(err, pool.ErrConnection),
		errors.Is(err, pool.ErrNotConnected),
		errors.Is(err, cache.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = KindConnection
	case errors.Is(err, store.ErrWrite):
		kind = KindWrite
	case errors.Is(err, cache.ErrCorruption):
		kind = KindCacheCorruption
	}
	return &Error{Kind: kind, Op: op, msg: err.Error()}
}
