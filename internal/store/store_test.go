package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hubscout/hubscout/internal/decision"
)

func TestCrawlEdges(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	query := regexp.QuoteMeta(`SELECT from_url, to_url FROM crawl_edges WHERE host = $1 ORDER BY observed_at DESC LIMIT $2`)
	rows := sqlmock.NewRows([]string{"from_url", "to_url"}).
		AddRow("https://example.com/", "https://example.com/news").
		AddRow("https://example.com/about", "https://example.com/news")
	mock.ExpectQuery(query).WithArgs("example.com", 500).WillReturnRows(rows)

	edges, err := st.CrawlEdges(context.Background(), "example.com", 0)
	if err != nil {
		t.Fatalf("CrawlEdges: %v", err)
	}
	if len(edges) != 2 || edges[0].ToURL != "https://example.com/news" {
		t.Fatalf("unexpected edges: %+v", edges)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHostLatency(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	query := regexp.QuoteMeta(`SELECT COALESCE(AVG(duration_ms),0), COUNT(*) FROM fetch_history WHERE host = $1`)
	mock.ExpectQuery(query).WithArgs("example.com").
		WillReturnRows(sqlmock.NewRows([]string{"avg", "count"}).AddRow(412.5, 30))

	avg, samples, err := st.HostLatency(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("HostLatency: %v", err)
	}
	if avg != 412.5 || samples != 30 {
		t.Fatalf("unexpected latency stats: %v %v", avg, samples)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	query := regexp.QuoteMeta(`INSERT INTO planning_runs (id, target, elapsed_ms, budget_exceeded, status_reason, seeds, hubs, confidence, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())`)
	mock.ExpectExec(query).
		WithArgs(sqlmock.AnyArg(), "https://example.com", int64(1200), false, "planning completed within budget", 12, 3, 0.62).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := st.SaveRun(context.Background(), RunRecord{
		Target:       "https://example.com",
		ElapsedMS:    1200,
		StatusReason: "planning completed within budget",
		Seeds:        12,
		Hubs:         3,
		Confidence:   0.62,
	})
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated run id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveDecision(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	rec := decision.Record{
		ID:        "1700000000-abc12345",
		Timestamp: time.Now(),
		Kind:      "fusion",
		Action:    "accept",
		Rationale: "primary quota met",
		Details:   map[string]interface{}{"seeds": 5},
	}
	query := regexp.QuoteMeta(`INSERT INTO planner_decisions (id, run_id, kind, action, rationale, reasons, details, decided_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`)
	mock.ExpectExec(query).
		WithArgs(rec.ID, "run-1", rec.Kind, rec.Action, rec.Rationale, pq.Array([]string{"trap_risk_high"}), sqlmock.AnyArg(), rec.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveDecision(context.Background(), "run-1", rec, []string{"trap_risk_high"}); err != nil {
		t.Fatalf("SaveDecision: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLatestRunTimeNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	query := regexp.QuoteMeta(`SELECT created_at FROM planning_runs WHERE target = $1 ORDER BY created_at DESC LIMIT 1`)
	mock.ExpectQuery(query).WithArgs("https://example.com").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	ts, err := st.LatestRunTime(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("LatestRunTime: %v", err)
	}
	if ts != nil {
		t.Fatalf("expected nil timestamp for unseen target, got %v", ts)
	}
}
