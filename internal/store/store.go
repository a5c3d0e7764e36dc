// Package store persists planning outcomes and serves the crawl history
// the reasoning plugins consume: link edges for hub scoring and fetch
// latencies for cost estimation.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hubscout/hubscout/internal/decision"
)

type Store struct {
	DB *sql.DB
}

// CrawlEdge is one observed link between two pages of a site.
type CrawlEdge struct {
	FromURL string
	ToURL   string
}

// RunRecord summarizes one completed planning run.
type RunRecord struct {
	ID             string
	Target         string
	ElapsedMS      int64
	BudgetExceeded bool
	StatusReason   string
	Seeds          int
	Hubs           int
	Confidence     float64
	CreatedAt      time.Time
}

// New builds a Store from environment configuration, mirroring the
// DATABASE_URL / POSTGRES_* convention used across deployments.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// CrawlEdges returns observed link edges within a host, most recent
// first, capped at limit.
func (s *Store) CrawlEdges(ctx context.Context, host string, limit int) ([]CrawlEdge, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT from_url, to_url FROM crawl_edges WHERE host = $1 ORDER BY observed_at DESC LIMIT $2`,
		host, limit)
	if err != nil {
		return nil, fmt.Errorf("querying crawl edges: %w", err)
	}
	defer rows.Close()

	var edges []CrawlEdge
	for rows.Next() {
		var e CrawlEdge
		if err := rows.Scan(&e.FromURL, &e.ToURL); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// RecordCrawlEdge stores one observed link.
func (s *Store) RecordCrawlEdge(ctx context.Context, host, fromURL, toURL string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO crawl_edges (host, from_url, to_url, observed_at) VALUES ($1,$2,$3,NOW())`,
		host, fromURL, toURL)
	return err
}

// HostLatency aggregates historical fetch telemetry for a host. samples
// is zero when no history exists; callers fall back to defaults then.
func (s *Store) HostLatency(ctx context.Context, host string) (avgMS float64, samples int, err error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(duration_ms),0), COUNT(*) FROM fetch_history WHERE host = $1`,
		host)
	if err := row.Scan(&avgMS, &samples); err != nil {
		return 0, 0, fmt.Errorf("querying fetch history: %w", err)
	}
	return avgMS, samples, nil
}

// RecordFetch appends one fetch observation to the latency history.
func (s *Store) RecordFetch(ctx context.Context, host, url string, durationMS int64, status int) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO fetch_history (host, url, duration_ms, status, fetched_at) VALUES ($1,$2,$3,$4,NOW())`,
		host, url, durationMS, status)
	return err
}

// SaveRun persists a planning run summary and returns its id.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO planning_runs (id, target, elapsed_ms, budget_exceeded, status_reason, seeds, hubs, confidence, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())`,
		rec.ID, rec.Target, rec.ElapsedMS, rec.BudgetExceeded, rec.StatusReason, rec.Seeds, rec.Hubs, rec.Confidence)
	if err != nil {
		return "", fmt.Errorf("saving planning run: %w", err)
	}
	return rec.ID, nil
}

// LatestRunTime returns the start time of the most recent run for a
// target, or nil when none exists.
func (s *Store) LatestRunTime(ctx context.Context, target string) (*time.Time, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT created_at FROM planning_runs WHERE target = $1 ORDER BY created_at DESC LIMIT 1`,
		target)
	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ts, nil
}

// SaveDecision mirrors an arbitration decision into durable storage.
func (s *Store) SaveDecision(ctx context.Context, runID string, rec decision.Record, reasons []string) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO planner_decisions (id, run_id, kind, action, rationale, reasons, details, decided_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, runID, rec.Kind, rec.Action, rec.Rationale, pq.Array(reasons), details, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("saving decision: %w", err)
	}
	return nil
}

// CreateUser registers an API user with a pre-hashed password.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1,$2,$3,NOW())`,
		uuid.New().String(), email, passwordHash)
	return err
}

// GetUserByEmail returns the user id and password hash for login checks.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, email)
	var id, hash string
	if err := row.Scan(&id, &hash); err != nil {
		return "", "", err
	}
	return id, hash, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
