package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

// GenerateSections runs all five section calls concurrently under a worker
// limit. A failed section becomes a SectionResult with its error recorded;
// it never aborts the siblings. Results come back in presentation order.
func (p *Pipeline) GenerateSections(ctx context.Context, data *runData, usage *model.TokenUsage) []model.SectionResult {
	contexts := buildSectionContexts(data)
	results := make([]model.SectionResult, len(contexts))
	usages := make([]model.TokenUsage, len(contexts))

	if secs := p.cfg.Sections.TimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Sections.MaxConcurrent)

	for i, sc := range contexts {
		g.Go(func() error {
			payload, u, err := p.generateSection(gctx, sc)
			usages[i] = u
			if err != nil {
				zap.L().Error("section generation failed",
					zap.String("section", string(sc.Name)),
					zap.Error(err))
				results[i] = model.SectionResult{Name: sc.Name, Error: err.Error()}
				return nil
			}
			results[i] = model.SectionResult{Name: sc.Name, Payload: payload}
			return nil
		})
	}
	_ = g.Wait()

	if usage != nil {
		for _, u := range usages {
			usage.Add(u)
		}
	}
	return results
}
