// Package lifecycle sequences process startup and shutdown.
//
// Startup: store pool → schema → cache pool → serve. Any failure aborts and
// the server is never started.
//
// Shutdown: stop HTTP (waits for in-flight handlers) → drain the ingestion
// coordinator → store pool → cache pool → flush logs. Every step runs even
// when an earlier one failed.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pool is a backend connection pool owned by the controller.
type Pool interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context)
}

// Server is the traffic-accepting surface; *http.Server satisfies it.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Drainer stops accepting work and waits for in-flight work to settle.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Options wires the controller.
type Options struct {
	Store Pool
	Cache Pool
	// Schema runs after the store pool is connected. Optional.
	Schema func(ctx context.Context) error
	Server Server
	Ingest Drainer
	// Flush is the final shutdown step, typically the logger's Sync. Optional.
	Flush           func() error
	Logger          *zap.Logger
	ShutdownTimeout time.Duration
}

// Controller exclusively owns both pools' lifetime.
type Controller struct {
	opts   Options
	logger *zap.Logger
}

// New returns a controller. Store, Cache and Server are required.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil || opts.Cache == nil || opts.Server == nil {
		return nil, errors.New("lifecycle: store, cache and server are required")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{opts: opts, logger: logger}, nil
}

// Start connects the pools in order. On failure anything already connected is
// released again and the error is returned.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.opts.Store.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", c.opts.Store.Name(), err)
	}

	if c.opts.Schema != nil {
		if err := c.opts.Schema(ctx); err != nil {
			c.opts.Store.Disconnect(ctx)
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	if err := c.opts.Cache.Connect(ctx); err != nil {
		c.opts.Store.Disconnect(ctx)
		return fmt.Errorf("connect %s: %w", c.opts.Cache.Name(), err)
	}

	c.logger.Info("backends connected")
	return nil
}

// Run starts the backends, serves until ctx is cancelled or the server fails,
// then shuts down. It returns the startup error or the server error, if any.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		c.logger.Info("accepting traffic")
		serveErr <- c.opts.Server.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
		c.logger.Info("shutdown requested")
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			c.logger.Error("server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.opts.ShutdownTimeout)
	defer cancel()
	c.Shutdown(shutdownCtx)
	return err
}

// Shutdown runs every shutdown step in order, logging failures and moving on.
func (c *Controller) Shutdown(ctx context.Context) {
	if err := c.opts.Server.Shutdown(ctx); err != nil {
		c.logger.Error("http shutdown", zap.Error(err))
	}

	if c.opts.Ingest != nil {
		if err := c.opts.Ingest.Drain(ctx); err != nil {
			c.logger.Error("ingestion drain", zap.Error(err))
		}
	}

	c.opts.Store.Disconnect(ctx)
	c.opts.Cache.Disconnect(ctx)

	c.logger.Info("service stopped")
	if c.opts.Flush != nil {
		// Nothing left to log to if the flush itself fails.
		_ = c.opts.Flush()
	}
}
