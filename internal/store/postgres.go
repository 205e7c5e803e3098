package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_trace": `INSERT INTO traces (id, input_ref, vehicle_label, vin, stages, overall_score,
		sections_ok, sections_fail, input_tokens, output_tokens, estimated_usd, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
	"get_trace": `SELECT id, input_ref, vehicle_label, vin, stages, overall_score,
		sections_ok, sections_fail, input_tokens, output_tokens, estimated_usd, error, created_at
		FROM traces WHERE id = $1`,
	"insert_reward":     `INSERT INTO reward_signals (id, trace_id, signal, created_at) VALUES ($1, $2, $3, $4)`,
	"insert_engagement": `INSERT INTO engagement_events (id, trace_id, section, dwell_ms, created_at) VALUES ($1, $2, $3, $4, $5)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS traces (
	id            TEXT PRIMARY KEY,
	input_ref     TEXT NOT NULL,
	vehicle_label TEXT,
	vin           TEXT,
	stages        JSONB,
	overall_score DOUBLE PRECISION,
	sections_ok   INTEGER NOT NULL DEFAULT 0,
	sections_fail INTEGER NOT NULL DEFAULT 0,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	estimated_usd DOUBLE PRECISION,
	error         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reward_signals (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	trace_id   TEXT NOT NULL REFERENCES traces(id),
	signal     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS engagement_events (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	trace_id   TEXT NOT NULL REFERENCES traces(id),
	section    TEXT NOT NULL,
	dwell_ms   BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_traces_vin ON traces(vin);
CREATE INDEX IF NOT EXISTS idx_traces_created_at ON traces(created_at);
CREATE INDEX IF NOT EXISTS idx_reward_signals_trace_id ON reward_signals(trace_id);
CREATE INDEX IF NOT EXISTS idx_engagement_events_trace_id ON engagement_events(trace_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateTrace(ctx context.Context, trace *model.Trace) error {
	stagesJSON, err := json.Marshal(trace.Stages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stages")
	}
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO traces (id, input_ref, vehicle_label, vin, stages, overall_score,
		 sections_ok, sections_fail, input_tokens, output_tokens, estimated_usd, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		trace.ID, trace.InputRef, trace.VehicleLabel, trace.VIN, stagesJSON,
		trace.OverallScore, trace.SectionsOK, trace.SectionsFail,
		trace.Usage.InputTokens, trace.Usage.OutputTokens, trace.EstimatedUSD,
		trace.Error, trace.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert trace %s", trace.ID)
}

func (s *PostgresStore) GetTrace(ctx context.Context, traceID string) (*model.Trace, error) {
	var t model.Trace
	var stagesJSON []byte
	var label, vin, errText *string
	var score, usd *float64

	err := s.pool.QueryRow(ctx,
		`SELECT id, input_ref, vehicle_label, vin, stages, overall_score,
		 sections_ok, sections_fail, input_tokens, output_tokens, estimated_usd, error, created_at
		 FROM traces WHERE id = $1`,
		traceID,
	).Scan(&t.ID, &t.InputRef, &label, &vin, &stagesJSON, &score,
		&t.SectionsOK, &t.SectionsFail, &t.Usage.InputTokens, &t.Usage.OutputTokens,
		&usd, &errText, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.New("trace not found")
		}
		return nil, eris.Wrapf(err, "postgres: get trace %s", traceID)
	}

	applyNullable(&t, label, vin, errText, score, usd)
	if len(stagesJSON) > 0 {
		if err := json.Unmarshal(stagesJSON, &t.Stages); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stages")
		}
	}
	return &t, nil
}

func (s *PostgresStore) ListTraces(ctx context.Context, filter TraceFilter) ([]model.Trace, error) {
	query := `SELECT id, input_ref, vehicle_label, vin, stages, overall_score,
	 sections_ok, sections_fail, input_tokens, output_tokens, estimated_usd, error, created_at
	 FROM traces WHERE true`
	args := []any{}
	argIdx := 1

	if filter.VIN != "" {
		query += fmt.Sprintf(` AND vin = $%d`, argIdx)
		args = append(args, filter.VIN)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list traces")
	}
	defer rows.Close()

	var traces []model.Trace
	for rows.Next() {
		var t model.Trace
		var stagesJSON []byte
		var label, vin, errText *string
		var score, usd *float64

		if err := rows.Scan(&t.ID, &t.InputRef, &label, &vin, &stagesJSON, &score,
			&t.SectionsOK, &t.SectionsFail, &t.Usage.InputTokens, &t.Usage.OutputTokens,
			&usd, &errText, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trace")
		}
		applyNullable(&t, label, vin, errText, score, usd)
		if len(stagesJSON) > 0 {
			if err := json.Unmarshal(stagesJSON, &t.Stages); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal stages")
			}
		}
		traces = append(traces, t)
	}
	return traces, eris.Wrap(rows.Err(), "postgres: list traces iterate")
}

func (s *PostgresStore) AttachReward(ctx context.Context, traceID string, signal model.RewardSignalKind) (*model.RewardSignal, error) {
	rs := &model.RewardSignal{
		ID:        uuid.New().String(),
		TraceID:   traceID,
		Signal:    signal,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO reward_signals (id, trace_id, signal, created_at) VALUES ($1, $2, $3, $4)`,
		rs.ID, rs.TraceID, string(rs.Signal), rs.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert reward for trace %s", traceID)
	}
	return rs, nil
}

func (s *PostgresStore) RecordEngagement(ctx context.Context, traceID string, section model.SectionName, dwellMS int64) (*model.EngagementEvent, error) {
	ev := &model.EngagementEvent{
		ID:        uuid.New().String(),
		TraceID:   traceID,
		Section:   section,
		DwellMS:   dwellMS,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO engagement_events (id, trace_id, section, dwell_ms, created_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.TraceID, string(ev.Section), ev.DwellMS, ev.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert engagement for trace %s", traceID)
	}
	return ev, nil
}

func applyNullable(t *model.Trace, label, vin, errText *string, score, usd *float64) {
	if label != nil {
		t.VehicleLabel = *label
	}
	if vin != nil {
		t.VIN = *vin
	}
	if errText != nil {
		t.Error = *errText
	}
	if score != nil {
		t.OverallScore = *score
	}
	if usd != nil {
		t.EstimatedUSD = *usd
	}
}
