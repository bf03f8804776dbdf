// Package db owns the bounded pool of PostgreSQL connections. All database
// access in the service flows through a Pool; callers lease a connection for
// the scope of a single operation and never hold one across requests.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kraemahz/subseq-util/internal/logger"
)

var (
	// ErrPoolExhausted is returned when no connection becomes free
	// within the configured acquire timeout.
	ErrPoolExhausted = errors.New("db: pool exhausted")
	// ErrConnectionFailed is returned (or escalated, depending on the
	// failure mode) when the database cannot be reached.
	ErrConnectionFailed = errors.New("db: connection failed")
)

// Config controls pool behaviour.
type Config struct {
	DSN            string
	MaxConns       int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	// Abort terminates the process on a connection error instead of
	// surfacing ErrConnectionFailed to the caller.
	Abort bool
}

// Metrics receives pool observations. Implemented by metrics.Collector;
// a nil Metrics disables collection.
type Metrics interface {
	ObserveAcquire(d time.Duration, err error)
}

// Pool is a bounded pool of database connections.
type Pool struct {
	db      *sql.DB
	cfg     Config
	metrics Metrics
}

// Open opens the pool and verifies connectivity with a single ping.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MaxConns)
	sqlDB.SetConnMaxIdleTime(cfg.IdleTimeout)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &Pool{db: sqlDB, cfg: cfg}, nil
}

// SetMetrics attaches a metrics sink. Call before serving traffic.
func (p *Pool) SetMetrics(m Metrics) { p.metrics = m }

// Close closes all pooled connections.
func (p *Pool) Close() error { return p.db.Close() }

// DB exposes the underlying handle for the migration runner only.
func (p *Pool) DB() *sql.DB { return p.db }

// acquire leases a connection, blocking up to the acquire timeout. The
// caller's context cancels the wait without leaking the slot.
func (p *Pool) acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	start := time.Now()
	conn, err := p.db.Conn(acquireCtx)
	if p.metrics != nil {
		p.metrics.ObserveAcquire(time.Since(start), err)
	}
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	return conn, nil
}

// classify maps a low-level acquire error onto the pool taxonomy and
// applies the configured failure mode.
func (p *Pool) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		// The enclosing request was cancelled; not a pool failure.
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrPoolExhausted
	}
	if p.cfg.Abort {
		logger.Fatal("database connection failed", map[string]any{
			"error": err.Error(),
		})
	}
	return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}

// With runs fn with a leased connection. The connection is returned to the
// pool on every exit path, including a panic in fn.
func (p *Pool) With(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, conn)
}

// WithTx runs fn inside a transaction on a leased connection. The
// transaction is rolled back unless fn returns nil, and the connection is
// released on every exit path.
func (p *Pool) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return p.classify(ctx, err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db: commit: %w", err)
	}
	return nil
}
