// Package pipeline implements the listing analysis flow: resolve the
// vehicle identity, gather market, safety, and research data concurrently,
// generate the report sections, and synthesize the overall verdict. Every
// invocation writes a trace before returning.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askcarbuddy/advisor-cli/internal/config"
	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/internal/store"
	"github.com/askcarbuddy/advisor-cli/pkg/anthropic"
	"github.com/askcarbuddy/advisor-cli/pkg/autodev"
	"github.com/askcarbuddy/advisor-cli/pkg/exa"
	"github.com/askcarbuddy/advisor-cli/pkg/nhtsa"
)

// Pipeline wires the collaborator clients into the analysis flow. All
// fields are set at construction; a Pipeline is safe for concurrent use.
type Pipeline struct {
	cfg       *config.Config
	exa       exa.Client
	autodev   autodev.Client
	nhtsa     nhtsa.Client
	anthropic anthropic.Client
	store     store.Store
	budgets   BudgetPolicy
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBudgetPolicy overrides the section token budget schedule.
func WithBudgetPolicy(p BudgetPolicy) Option {
	return func(pl *Pipeline) {
		pl.budgets = p
	}
}

// New constructs a Pipeline from its collaborators. Any client may be nil;
// the stages that need it degrade to data-unavailable.
func New(cfg *config.Config, exaClient exa.Client, autodevClient autodev.Client, nhtsaClient nhtsa.Client, anthropicClient anthropic.Client, st store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		exa:       exaClient,
		autodev:   autodevClient,
		nhtsa:     nhtsaClient,
		anthropic: anthropicClient,
		store:     st,
		budgets:   BudgetPolicy{Budgets: cfg.Sections.BudgetSchedule},
	}
	if len(p.budgets.Budgets) == 0 {
		p.budgets = DefaultBudgetPolicy()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// stageTracker accumulates per-stage latencies across goroutines.
type stageTracker struct {
	mu     sync.Mutex
	stages []model.StageLatency
}

// track runs fn and records its wall-clock duration under the stage name.
func (t *stageTracker) track(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	t.mu.Lock()
	t.stages = append(t.stages, model.StageLatency{
		Stage:      stage,
		DurationMS: time.Since(start).Milliseconds(),
	})
	t.mu.Unlock()
	return err
}

// Analyze runs the full flow for one listing input and returns the
// assembled report. A trace row is written for every invocation, including
// identity-resolution failures, before this returns.
func (p *Pipeline) Analyze(ctx context.Context, in model.ListingInput) (*model.Report, error) {
	traceID := uuid.NewString()
	tracker := &stageTracker{}
	started := time.Now()

	inputRef := in.URL
	if inputRef == "" {
		inputRef = "manual"
	}

	var id *model.VehicleIdentity
	err := tracker.track("identity", func() error {
		var rerr error
		id, rerr = p.ResolveIdentity(ctx, in)
		return rerr
	})
	if err != nil {
		p.writeTrace(ctx, &model.Trace{
			ID:        traceID,
			InputRef:  inputRef,
			Stages:    tracker.stages,
			Error:     err.Error(),
			CreatedAt: started,
		})
		return nil, err
	}

	data := &runData{Identity: id}

	// Market, safety, and research are independent reads; run them
	// together. Each tolerates its own provider failing.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tracker.track("market", func() error {
			snap, err := p.MarketPosition(gctx, id)
			if err != nil {
				zap.L().Warn("market position unavailable", zap.Error(err))
				return nil
			}
			data.Market = snap
			return nil
		})
	})
	g.Go(func() error {
		return tracker.track("safety", func() error {
			profile, err := p.SafetyProfile(gctx, id)
			if err != nil {
				zap.L().Warn("safety profile unavailable", zap.Error(err))
				return nil
			}
			data.Safety = profile
			return nil
		})
	})
	g.Go(func() error {
		return tracker.track("research", func() error {
			bundle, err := p.Research(gctx, id)
			if err != nil {
				zap.L().Warn("research unavailable", zap.Error(err))
				return nil
			}
			data.Research = bundle
			return nil
		})
	})
	_ = g.Wait()

	if data.Research == nil {
		data.Research = make(model.ResearchBundle)
		for _, topic := range model.AllTopics {
			data.Research[topic] = model.NoEvidenceMarker
		}
	}

	var usage model.TokenUsage
	var sections []model.SectionResult
	_ = tracker.track("sections", func() error {
		sections = p.GenerateSections(ctx, data, &usage)
		return nil
	})

	ok, failed := 0, 0
	for _, s := range sections {
		if s.Failed() {
			failed++
		} else {
			ok++
		}
	}

	trace := &model.Trace{
		ID:           traceID,
		InputRef:     inputRef,
		VehicleLabel: id.Label(),
		VIN:          id.VIN,
		SectionsOK:   ok,
		SectionsFail: failed,
		CreatedAt:    started,
	}

	if ok == 0 {
		err := &AllSectionsFailedError{Sections: sections}
		trace.Stages = tracker.stages
		trace.Usage = usage
		trace.EstimatedUSD = estimateUSD(usage, p.cfg.Anthropic.Model)
		trace.Error = err.Error()
		p.writeTrace(ctx, trace)
		return nil, err
	}

	var overall model.OverallScore
	_ = tracker.track("synthesis", func() error {
		overall = p.SynthesizeScore(ctx, id, sections, &usage)
		return nil
	})

	trace.Stages = tracker.stages
	trace.OverallScore = overall.Score
	trace.Usage = usage
	trace.EstimatedUSD = estimateUSD(usage, p.cfg.Anthropic.Model)
	p.writeTrace(ctx, trace)

	report := &model.Report{
		TraceID:     traceID,
		GeneratedAt: time.Now().UTC(),
		Vehicle:     *id,
		Market:      data.Market,
		Safety:      data.Safety,
		Overall:     overall,
		Sections:    sections,
	}

	zap.L().Info("analysis complete",
		zap.String("trace_id", traceID),
		zap.String("vehicle", id.Label()),
		zap.Float64("score", overall.Score),
		zap.Int("sections_ok", ok),
		zap.Int("sections_failed", failed),
		zap.Duration("elapsed", time.Since(started)))
	return report, nil
}

// AllSectionsFailedError means generation produced nothing usable.
type AllSectionsFailedError struct {
	Sections []model.SectionResult
}

func (e *AllSectionsFailedError) Error() string {
	return "all report sections failed to generate"
}

// ParsePreview resolves the identity only, for the parse-url preview
// endpoint. No generation, no trace.
func (p *Pipeline) ParsePreview(ctx context.Context, in model.ListingInput) (*model.VehicleIdentity, error) {
	return p.ResolveIdentity(ctx, in)
}

func (p *Pipeline) writeTrace(ctx context.Context, trace *model.Trace) {
	if p.store == nil {
		return
	}
	if err := p.store.CreateTrace(ctx, trace); err != nil {
		zap.L().Error("trace write failed",
			zap.String("trace_id", trace.ID),
			zap.Error(err))
	}
}

func estimateUSD(usage model.TokenUsage, modelID string) float64 {
	u := anthropic.TokenUsage{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
	}
	return u.EstimateCost(modelID)
}
