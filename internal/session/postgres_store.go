package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kraemahz/subseq-util/internal/db"
)

// PostgresStore persists sessions in the sessions table. The foreign key
// to users guarantees no session outlives its owner, and Touch makes the
// hot-path validate-and-renew a single round trip.
type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (r *PostgresStore) Create(ctx context.Context, s *Session) error {
	return r.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO sessions (token, user_id, created_at, expires_at, last_seen_at)
			VALUES ($1, $2, $3, $4, $5)`,
			s.Token, s.UserID, s.CreatedAt, s.ExpiresAt, s.LastSeenAt,
		)
		if err != nil {
			return fmt.Errorf("session: create: %w", err)
		}
		return nil
	})
}

func (r *PostgresStore) Get(ctx context.Context, token string) (*Session, error) {
	var out *Session
	err := r.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		s := &Session{}
		err := conn.QueryRowContext(ctx, `
			SELECT token, user_id, created_at, expires_at, last_seen_at
			FROM sessions WHERE token = $1`,
			token,
		).Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.LastSeenAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("session: get: %w", err)
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresStore) Touch(ctx context.Context, token string, expiresAt time.Time) (*Session, error) {
	var out *Session
	err := r.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		s := &Session{}
		err := conn.QueryRowContext(ctx, `
			UPDATE sessions
			SET expires_at = $2, last_seen_at = NOW()
			WHERE token = $1 AND expires_at > NOW()
			RETURNING token, user_id, created_at, expires_at, last_seen_at`,
			token, expiresAt,
		).Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.LastSeenAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("session: touch: %w", err)
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresStore) Delete(ctx context.Context, token string) error {
	return r.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM sessions WHERE token = $1`, token,
		); err != nil {
			return fmt.Errorf("session: delete: %w", err)
		}
		return nil
	})
}

func (r *PostgresStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM sessions WHERE user_id = $1`, userID,
		); err != nil {
			return fmt.Errorf("session: delete by user: %w", err)
		}
		return nil
	})
}

func (r *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx,
			`DELETE FROM sessions WHERE expires_at <= NOW()`,
		)
		if err != nil {
			return fmt.Errorf("session: delete expired: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

var _ Store = (*PostgresStore)(nil)
