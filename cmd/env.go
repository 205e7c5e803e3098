package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/askcarbuddy/advisor-cli/internal/pipeline"
	"github.com/askcarbuddy/advisor-cli/internal/store"
	anthropicpkg "github.com/askcarbuddy/advisor-cli/pkg/anthropic"
	"github.com/askcarbuddy/advisor-cli/pkg/autodev"
	"github.com/askcarbuddy/advisor-cli/pkg/exa"
	"github.com/askcarbuddy/advisor-cli/pkg/nhtsa"
)

// env bundles the constructed pipeline with the store it owns, so commands
// can tear both down together.
type env struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured trace store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initPipeline wires the collaborator clients and the store into a ready
// pipeline.
func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	exaClient := exa.NewClient(cfg.Exa.Key,
		exa.WithBaseURL(cfg.Exa.BaseURL),
		exa.WithTimeout(time.Duration(cfg.Exa.TimeoutSecs)*time.Second),
		exa.WithMaxImageLinks(cfg.Exa.MaxImageLinks))
	autodevClient := autodev.NewClient(cfg.AutoDev.Key,
		autodev.WithBaseURL(cfg.AutoDev.BaseURL),
		autodev.WithTimeout(time.Duration(cfg.AutoDev.TimeoutSecs)*time.Second),
		autodev.WithRateLimit(cfg.AutoDev.RatePerSec))
	nhtsaClient := nhtsa.NewClient(
		nhtsa.WithBaseURL(cfg.NHTSA.BaseURL),
		nhtsa.WithVPICBaseURL(cfg.NHTSA.VPICBaseURL),
		nhtsa.WithTimeout(time.Duration(cfg.NHTSA.TimeoutSecs)*time.Second),
		nhtsa.WithRateLimit(cfg.NHTSA.RatePerSec))
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	p := pipeline.New(cfg, exaClient, autodevClient, nhtsaClient, anthropicClient, st)

	return &env{Pipeline: p, Store: st}, nil
}
