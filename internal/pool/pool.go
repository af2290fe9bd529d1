// Package pool provides the bounded connection pool shared by the durable
// store and the counting cache.
//
// A Pool is constructed disconnected. Connect dials MinSize connections up
// front so an unreachable backend is reported at startup instead of on the
// first request. Request code only borrows connections through Use, which
// returns the connection on every exit path.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/puddle/v2"
	"go.uber.org/zap"
)

var (
	// ErrExhausted is returned when every connection stayed borrowed for the
	// whole acquire timeout.
	ErrExhausted = errors.New("pool exhausted")

	// ErrConnection is returned when the backend could not be dialed.
	ErrConnection = errors.New("backend connection failed")

	// ErrNotConnected is returned by Use before Connect or after Disconnect.
	ErrNotConnected = errors.New("pool not connected")
)

// Config sizes a pool.
type Config struct {
	// Name labels log lines and metrics ("postgres", "redis").
	Name    string
	MinSize int32
	MaxSize int32
	// Timeout bounds one Use call: acquisition plus the work done with the
	// borrowed connection.
	Timeout time.Duration
}

// DialFunc opens one backend connection.
type DialFunc[T any] func(ctx context.Context) (T, error)

// CloseFunc closes one backend connection.
type CloseFunc[T any] func(conn T) error

// BrokenFunc reports whether conn must be discarded after fn failed with err.
type BrokenFunc[T any] func(conn T, err error) bool

// Pool is a bounded set of live connections to one backend.
type Pool[T any] struct {
	cfg    Config
	dial   DialFunc[T]
	close  CloseFunc[T]
	broken BrokenFunc[T]
	logger *zap.Logger

	mu sync.Mutex
	rp *puddle.Pool[T]
}

// New returns a disconnected pool. broken may be nil, in which case borrowed
// connections are always returned to the pool.
func New[T any](cfg Config, dial DialFunc[T], closeFn CloseFunc[T], broken BrokenFunc[T], logger *zap.Logger) (*Pool[T], error) {
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("pool %s: max size must be > 0", cfg.Name)
	}
	if cfg.MinSize < 0 || cfg.MinSize > cfg.MaxSize {
		return nil, fmt.Errorf("pool %s: min size must be within [0, %d]", cfg.Name, cfg.MaxSize)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("pool %s: timeout must be > 0", cfg.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool[T]{
		cfg:    cfg,
		dial:   dial,
		close:  closeFn,
		broken: broken,
		logger: logger.With(zap.String("pool", cfg.Name)),
	}, nil
}

// Name returns the configured pool name.
func (p *Pool[T]) Name() string { return p.cfg.Name }

// Connect establishes the pool. Calling it on a connected pool is a no-op.
func (p *Pool[T]) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rp != nil {
		return nil
	}

	rp, err := puddle.NewPool(&puddle.Config[T]{
		Constructor: p.construct,
		Destructor:  p.destruct,
		MaxSize:     p.cfg.MaxSize,
	})
	if err != nil {
		return fmt.Errorf("pool %s: %w", p.cfg.Name, err)
	}

	for i := int32(0); i < p.cfg.MinSize; i++ {
		dialCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		err := rp.CreateResource(dialCtx)
		cancel()
		if err != nil {
			rp.Close()
			return err
		}
	}

	p.rp = rp
	p.logger.Info("pool connected",
		zap.Int32("min_size", p.cfg.MinSize),
		zap.Int32("max_size", p.cfg.MaxSize),
		zap.Duration("timeout", p.cfg.Timeout),
	)
	return nil
}

// Disconnect closes every connection and marks the pool disconnected. It waits
// for borrowed connections to be returned unless ctx expires first, in which
// case the remaining closes are left to finish in the background. Calling it
// on a disconnected pool is a no-op.
func (p *Pool[T]) Disconnect(ctx context.Context) {
	p.mu.Lock()
	rp := p.rp
	p.rp = nil
	p.mu.Unlock()

	if rp == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		rp.Close()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("pool disconnected")
	case <-ctx.Done():
		p.logger.Warn("pool disconnect abandoned, connections still borrowed",
			zap.Int32("acquired", rp.Stat().AcquiredResources()),
			zap.Error(ctx.Err()),
		)
	}
}

// Use borrows a connection for the duration of fn. The connection goes back
// to the pool when fn returns, fails or panics.
//
// Failing to acquire a connection before a deadline is reported as
// ErrExhausted, whether the deadline was the pool's Timeout or one already
// carried by ctx. Only an explicit cancellation of ctx is passed through.
func (p *Pool[T]) Use(ctx context.Context, fn func(ctx context.Context, conn T) error) error {
	p.mu.Lock()
	rp := p.rp
	p.mu.Unlock()

	if rp == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, p.cfg.Name)
	}

	opCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	res, err := rp.Acquire(opCtx)
	if err != nil {
		return p.acquireError(ctx, err)
	}

	released := false
	defer func() {
		if !released {
			res.Release()
		}
	}()

	conn := res.Value()
	err = fn(opCtx, conn)
	if err != nil && p.broken != nil && p.broken(conn, err) {
		// Hijack drops the resource from the pool before refill counts it;
		// Destroy would remove it asynchronously.
		released = true
		res.Hijack()
		p.destruct(conn)
		p.logger.Warn("discarded broken connection", zap.Error(err))
		go p.refill(rp)
	}
	return err
}

func (p *Pool[T]) acquireError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, puddle.ErrClosedPool):
		return fmt.Errorf("%w: %s", ErrNotConnected, p.cfg.Name)
	case errors.Is(err, ErrConnection):
		return err
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: no connection within %s", ErrExhausted, p.cfg.Name, p.cfg.Timeout)
	default:
		return fmt.Errorf("%w: %s: %v", ErrConnection, p.cfg.Name, err)
	}
}

// refill tops the pool back up to MinSize after a connection was discarded.
func (p *Pool[T]) refill(rp *puddle.Pool[T]) {
	for rp.Stat().TotalResources() < p.cfg.MinSize {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
		err := rp.CreateResource(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, puddle.ErrClosedPool) && !errors.Is(err, puddle.ErrNotAvailable) {
				p.logger.Warn("pool refill failed", zap.Error(err))
			}
			return
		}
	}
}

// Live returns the number of open connections, zero when disconnected.
func (p *Pool[T]) Live() int32 {
	return p.Stat().Live
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Live     int32
	Acquired int32
	Idle     int32
	Max      int32
}

// Stat returns current occupancy.
func (p *Pool[T]) Stat() Stats {
	p.mu.Lock()
	rp := p.rp
	p.mu.Unlock()

	if rp == nil {
		return Stats{Max: p.cfg.MaxSize}
	}
	s := rp.Stat()
	return Stats{
		Live:     s.TotalResources(),
		Acquired: s.AcquiredResources(),
		Idle:     s.IdleResources(),
		Max:      s.MaxResources(),
	}
}

func (p *Pool[T]) construct(ctx context.Context) (T, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		var zero T
		// %v keeps dial-time deadlines from reading as pool exhaustion.
		return zero, fmt.Errorf("%w: %s: %v", ErrConnection, p.cfg.Name, err)
	}
	return conn, nil
}

func (p *Pool[T]) destruct(conn T) {
	if err := p.close(conn); err != nil {
		p.logger.Warn("closing connection failed", zap.Error(err))
	}
}
