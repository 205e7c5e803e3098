// Package store persists analysis traces and the feedback signals that
// attach to them. Traces are append-only: written once per pipeline
// invocation and never updated.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

// TraceFilter specifies criteria for listing traces.
type TraceFilter struct {
	VIN    string `json:"vin,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for traces and feedback.
type Store interface {
	// Traces
	CreateTrace(ctx context.Context, trace *model.Trace) error
	GetTrace(ctx context.Context, traceID string) (*model.Trace, error)
	ListTraces(ctx context.Context, filter TraceFilter) ([]model.Trace, error)

	// Feedback
	AttachReward(ctx context.Context, traceID string, signal model.RewardSignalKind) (*model.RewardSignal, error)
	RecordEngagement(ctx context.Context, traceID string, section model.SectionName, dwellMS int64) (*model.EngagementEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Pool is the subset of pgxpool.Pool the Postgres store uses, satisfied by
// pgxmock in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
