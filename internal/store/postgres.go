package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/PratikDhanave/event-counter-service/internal/models"
	"github.com/PratikDhanave/event-counter-service/internal/pool"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

const insertEventSQL = `
	INSERT INTO events (user_id, event_type, timestamp, payload)
	VALUES ($1, $2, $3, $4)
`

// ErrWrite wraps any failure of the insert after a connection was obtained.
var ErrWrite = errors.New("event write failed")

// Conn is the subset of *pgx.Conn the store needs.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	IsClosed() bool
}

// NewPostgresPool builds a disconnected pool of pgx connections for dsn.
// The DSN is parsed here so a malformed value fails before startup.
func NewPostgresPool(dsn string, cfg pool.Config, logger *zap.Logger) (*pool.Pool[Conn], error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse PG_DSN: %w", err)
	}

	dial := func(ctx context.Context) (Conn, error) {
		c, err := pgx.ConnectConfig(ctx, connCfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	closeConn := func(c Conn) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.Close(ctx)
	}
	broken := func(c Conn, _ error) bool { return c.IsClosed() }

	if cfg.Name == "" {
		cfg.Name = "postgres"
	}
	return pool.New[Conn](cfg, dial, closeConn, broken, logger)
}

// PostgresStore is the durable persistence layer for events. It does not own
// its pool; the lifecycle controller connects and disconnects it.
type PostgresStore struct {
	pool *pool.Pool[Conn]
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(p *pool.Pool[Conn]) *PostgresStore {
	return &PostgresStore{pool: p}
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return s.pool.Use(ctx, func(ctx context.Context, c Conn) error {
		if _, err := c.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		return nil
	})
}

// Ping is used by the readiness endpoint to validate DB connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Use(ctx, func(ctx context.Context, c Conn) error {
		return c.Ping(ctx)
	})
}

// SaveEvent appends one row for ev. There is no retry and no deduplication:
// calling it twice with the same event stores two rows.
//
// Pool errors (pool.ErrExhausted, pool.ErrConnection) are returned as is;
// anything failing after a connection was obtained wraps ErrWrite.
func (s *PostgresStore) SaveEvent(ctx context.Context, ev models.Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrWrite, err)
	}

	return s.pool.Use(ctx, func(ctx context.Context, c Conn) error {
		tag, err := c.Exec(ctx, insertEventSQL, ev.UserID, ev.EventType, ev.Timestamp, payloadJSON)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: expected 1 row, got %d", ErrWrite, tag.RowsAffected())
		}
		return nil
	})
}
