// Package ingest coordinates the write path for one incoming event: the
// durable insert and the counter increment are issued concurrently and the
// event is accepted only when both succeed.
//
// There is no shared transaction between Postgres and Redis. When one side
// fails the other side is not rolled back, so the durable log and the
// counters may drift; the failure is reported and logged, nothing more.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PratikDhanave/event-counter-service/internal/metrics"
	"github.com/PratikDhanave/event-counter-service/internal/models"
)

const (
	OutcomeAccepted = "accepted"
	OutcomeFailed   = "failed"
)

// EventWriter is the durable side of the write path.
type EventWriter interface {
	SaveEvent(ctx context.Context, ev models.Event) error
}

// Counter is the cache side of the write path.
type Counter interface {
	IncrementCounter(ctx context.Context, eventType string) (int64, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTimeout bounds one dispatch (both sides together). Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// Service is the ingestion coordinator.
type Service struct {
	writer  EventWriter
	counter Counter
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inflight atomic.Int64
}

// NewService wires the coordinator to its two backends.
func NewService(w EventWriter, c Counter, opts ...Option) *Service {
	s := &Service{
		writer:  w,
		counter: c,
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates req and, if valid, writes the event and increments its
// counter concurrently. It returns nil when both succeeded and an *Error
// otherwise; a validation failure never reaches either backend.
//
// Both backend calls run on a context detached from ctx's cancellation and
// bounded by the service timeout. A caller that gives up early therefore
// never cancels only one of the two; they finish or time out together.
func (s *Service) Ingest(ctx context.Context, req models.EventIngestRequest) error {
	ev, err := req.Validate()
	if err != nil {
		return Classify("validate", err, KindValidation)
	}

	if !s.begin() {
		s.metrics.ObserveIngest(OutcomeFailed, KindShuttingDown.String(), 0)
		return &Error{Kind: KindShuttingDown, Op: "ingest", msg: "service is shutting down"}
	}
	defer s.end()

	start := time.Now()
	err = s.dispatch(ctx, ev)
	elapsed := time.Since(start)

	if err != nil {
		kind := KindOf(err)
		s.metrics.ObserveIngest(OutcomeFailed, kind.String(), elapsed)
		return err
	}
	s.metrics.ObserveIngest(OutcomeAccepted, "", elapsed)
	return nil
}

func (s *Service) dispatch(ctx context.Context, ev models.Event) error {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var writeErr, countErr error
	var g errgroup.Group
	g.Go(func() error {
		if err := s.writer.SaveEvent(dctx, ev); err != nil {
			writeErr = Classify("save_event", err, KindWrite)
			return writeErr
		}
		return nil
	})
	g.Go(func() error {
		if _, err := s.counter.IncrementCounter(dctx, ev.EventType); err != nil {
			countErr = Classify("increment_counter", err, KindConnection)
			return countErr
		}
		return nil
	})
	err := g.Wait()

	switch {
	case err == nil:
		return nil
	case writeErr != nil && countErr != nil:
		s.logger.Error("event failed on both backends",
			zap.String("event_type", ev.EventType),
			zap.NamedError("write_error", writeErr),
			zap.NamedError("counter_error", countErr),
		)
	case writeErr != nil:
		s.logger.Error("event counted but not stored",
			zap.String("event_type", ev.EventType),
			zap.Error(writeErr),
		)
	default:
		s.logger.Error("event stored but not counted",
			zap.String("event_type", ev.EventType),
			zap.Error(countErr),
		)
	}
	return err
}

func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	s.inflight.Add(1)
	return true
}

func (s *Service) end() {
	s.inflight.Add(-1)
	s.wg.Done()
}

// InFlight returns the number of ingestions between dispatch and settlement.
func (s *Service) InFlight() int64 { return s.inflight.Load() }

// Drain stops accepting new ingestions and waits for in-flight ones to
// settle. If ctx expires first it returns an error naming how many were still
// running; those keep running in the background and may still write.
func (s *Service) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain: abandoned %d in-flight ingestions: %w", s.inflight.Load(), ctx.Err())
	}
}
