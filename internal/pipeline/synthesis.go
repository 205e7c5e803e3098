package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/pkg/anthropic"
)

// neutralScore is the fallback verdict when synthesis itself fails: a
// deliberately non-committal middle score so a broken scoring call can
// never swing a buyer either way.
var neutralScore = model.OverallScore{
	Score:    5.0,
	Label:    model.LabelWorthALook,
	OneLiner: "We could not compute a confident overall score for this listing; weigh the individual sections on their own.",
}

const synthesisSystem = `You are a used-car buying advisor producing a final verdict from completed report sections.

Score from 0.0 to 10.0 with one decimal place. Base the score only on what the sections actually say; missing or failed sections lower confidence, not the score itself. Respond with a single JSON object: {"score": 0.0, "label": "", "one_liner": ""}. Label must be exactly one of: "Great Find", "Solid Pick", "Worth a Look", "Proceed with Caution", "Think Twice". No markdown, no commentary.`

// SynthesizeScore folds the successful section payloads into one overall
// verdict. Any failure returns the fixed neutral default instead of an
// error; a report without a verdict line is worse than a neutral one.
func (p *Pipeline) SynthesizeScore(ctx context.Context, id *model.VehicleIdentity, sections []model.SectionResult, usage *model.TokenUsage) model.OverallScore {
	// Failed sections are omitted entirely: the synthesis judges only what
	// was actually produced.
	var b strings.Builder
	fmt.Fprintf(&b, "Vehicle: %s\n\nCompleted sections:\n", id.Label())
	for _, s := range sections {
		if s.Failed() {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n", s.Name, string(s.Payload))
	}

	resp, err := p.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.cfg.Anthropic.Model,
		MaxTokens:   256,
		System:      []anthropic.SystemBlock{{Text: synthesisSystem}},
		Messages:    []anthropic.Message{{Role: "user", Content: b.String()}},
		Temperature: &p.cfg.Anthropic.Temperature,
	})
	if err != nil {
		zap.L().Warn("score synthesis failed, using neutral default", zap.Error(err))
		return neutralScore
	}

	if usage != nil {
		usage.Add(model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		})
	}
	resp.Usage.LogCost(p.cfg.Anthropic.Model, "synthesis")

	var overall model.OverallScore
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &overall); err != nil {
		zap.L().Warn("score synthesis unparseable, using neutral default", zap.Error(err))
		return neutralScore
	}
	if overall.Score < 0 || overall.Score > 10 || !validScoreLabel(overall.Label) {
		zap.L().Warn("score synthesis out of range, using neutral default",
			zap.Float64("score", overall.Score),
			zap.String("label", string(overall.Label)))
		return neutralScore
	}

	overall.Score = math.Round(overall.Score*10) / 10
	return overall
}

func validScoreLabel(label model.ScoreLabel) bool {
	switch label {
	case model.LabelGreatFind, model.LabelSolidPick, model.LabelWorthALook,
		model.LabelCaution, model.LabelThinkTwice:
		return true
	}
	return false
}
