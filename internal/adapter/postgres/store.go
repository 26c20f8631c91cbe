// Package postgres persists traffic history and dashboard users in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS traffic_history (
	city          TEXT             NOT NULL,
	segment_id    TEXT             NOT NULL,
	ts            TIMESTAMPTZ      NOT NULL,
	interval_min  INTEGER          NOT NULL,
	vehicle_count DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (city, segment_id, ts)
);
CREATE INDEX IF NOT EXISTS traffic_history_lookup
	ON traffic_history (city, segment_id, interval_min, ts DESC);
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL,
	role     TEXT NOT NULL DEFAULT 'user'
);`

const upsertPoint = `INSERT INTO traffic_history (city, segment_id, ts, interval_min, vehicle_count)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (city, segment_id, ts)
DO UPDATE SET interval_min = EXCLUDED.interval_min, vehicle_count = EXCLUDED.vehicle_count`

const selectHistory = `SELECT vehicle_count FROM (
	SELECT vehicle_count, ts FROM traffic_history
	WHERE city = $1 AND segment_id = $2 AND interval_min = $3
	ORDER BY ts DESC LIMIT $4
) recent ORDER BY ts ASC`

// Store implements domain.HistoryStore and domain.UserStore.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL using a lib/pq DSN and configures the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres not reachable: %w", err)
	}
	return nil
}

func (s *Store) StorePoint(ctx context.Context, p domain.TrafficPoint) error {
	if _, err := s.db.ExecContext(ctx, upsertPoint, p.City, p.SegmentID, p.Timestamp, p.IntervalMin, p.Value); err != nil {
		return fmt.Errorf("store point %s: %w", p.SegmentID, err)
	}
	return nil
}

// StoreBatch upserts all points in one transaction.
func (s *Store) StoreBatch(ctx context.Context, points []domain.TrafficPoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertPoint)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err = stmt.ExecContext(ctx, p.City, p.SegmentID, p.Timestamp, p.IntervalMin, p.Value); err != nil {
			return fmt.Errorf("store point %s: %w", p.SegmentID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, city, segmentID string, intervalMin, limit int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, selectHistory, city, segmentID, intervalMin, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	row := s.db.QueryRowContext(ctx, `SELECT username, password, role FROM users WHERE username = $1`, username)
	if err := row.Scan(&u.Username, &u.PasswordHash, &u.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (username, password, role) VALUES ($1, $2, $3)`, u.Username, u.PasswordHash, u.Role)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("user %q: %w", u.Username, domain.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
