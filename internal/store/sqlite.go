package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Writes are
// serialized through a mutex; SQLite allows one writer at a time and the
// pipeline's concurrent phases can all reach the store.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS traces (
	id            TEXT PRIMARY KEY,
	input_ref     TEXT NOT NULL,
	vehicle_label TEXT,
	vin           TEXT,
	stages        TEXT,
	overall_score REAL,
	sections_ok   INTEGER NOT NULL DEFAULT 0,
	sections_fail INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	estimated_usd REAL,
	error         TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reward_signals (
	id         TEXT PRIMARY KEY,
	trace_id   TEXT NOT NULL REFERENCES traces(id),
	signal     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS engagement_events (
	id         TEXT PRIMARY KEY,
	trace_id   TEXT NOT NULL REFERENCES traces(id),
	section    TEXT NOT NULL,
	dwell_ms   INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_traces_vin ON traces(vin);
CREATE INDEX IF NOT EXISTS idx_traces_created_at ON traces(created_at);
CREATE INDEX IF NOT EXISTS idx_reward_signals_trace_id ON reward_signals(trace_id);
CREATE INDEX IF NOT EXISTS idx_engagement_events_trace_id ON engagement_events(trace_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTrace(ctx context.Context, trace *model.Trace) error {
	stagesJSON, err := json.Marshal(trace.Stages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stages")
	}
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO traces (id, input_ref, vehicle_label, vin, stages, overall_score,
		 sections_ok, sections_fail, input_tokens, output_tokens, estimated_usd, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trace.ID, trace.InputRef, trace.VehicleLabel, trace.VIN, string(stagesJSON),
		trace.OverallScore, trace.SectionsOK, trace.SectionsFail,
		trace.Usage.InputTokens, trace.Usage.OutputTokens, trace.EstimatedUSD,
		trace.Error, trace.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert trace %s", trace.ID)
}

func (s *SQLiteStore) GetTrace(ctx context.Context, traceID string) (*model.Trace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, input_ref, vehicle_label, vin, stages, overall_score,
		 sections_ok, sections_fail, input_tokens, output_tokens, estimated_usd, error, created_at
		 FROM traces WHERE id = ?`,
		traceID,
	)
	return scanTrace(row)
}

func (s *SQLiteStore) ListTraces(ctx context.Context, filter TraceFilter) ([]model.Trace, error) {
	query := `SELECT id, input_ref, vehicle_label, vin, stages, overall_score,
	 sections_ok, sections_fail, input_tokens, output_tokens, estimated_usd, error, created_at
	 FROM traces WHERE 1=1`
	var args []any

	if filter.VIN != "" {
		query += ` AND vin = ?`
		args = append(args, filter.VIN)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list traces")
	}
	defer rows.Close()

	var traces []model.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		traces = append(traces, *t)
	}
	return traces, eris.Wrap(rows.Err(), "sqlite: list traces iterate")
}

func (s *SQLiteStore) AttachReward(ctx context.Context, traceID string, signal model.RewardSignalKind) (*model.RewardSignal, error) {
	rs := &model.RewardSignal{
		ID:        uuid.New().String(),
		TraceID:   traceID,
		Signal:    signal,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reward_signals (id, trace_id, signal, created_at) VALUES (?, ?, ?, ?)`,
		rs.ID, rs.TraceID, string(rs.Signal), rs.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert reward for trace %s", traceID)
	}
	return rs, nil
}

func (s *SQLiteStore) RecordEngagement(ctx context.Context, traceID string, section model.SectionName, dwellMS int64) (*model.EngagementEvent, error) {
	ev := &model.EngagementEvent{
		ID:        uuid.New().String(),
		TraceID:   traceID,
		Section:   section,
		DwellMS:   dwellMS,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engagement_events (id, trace_id, section, dwell_ms, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.TraceID, string(ev.Section), ev.DwellMS, ev.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert engagement for trace %s", traceID)
	}
	return ev, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanTrace(row scannable) (*model.Trace, error) {
	var t model.Trace
	var stagesJSON sql.NullString
	var label, vin, errText sql.NullString
	var score, usd sql.NullFloat64

	err := row.Scan(&t.ID, &t.InputRef, &label, &vin, &stagesJSON, &score,
		&t.SectionsOK, &t.SectionsFail, &t.Usage.InputTokens, &t.Usage.OutputTokens,
		&usd, &errText, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("trace not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan trace")
	}

	t.VehicleLabel = label.String
	t.VIN = vin.String
	t.Error = errText.String
	t.OverallScore = score.Float64
	t.EstimatedUSD = usd.Float64

	if stagesJSON.Valid && stagesJSON.String != "" && stagesJSON.String != "null" {
		if err := json.Unmarshal([]byte(stagesJSON.String), &t.Stages); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stages")
		}
	}
	return &t, nil
}
