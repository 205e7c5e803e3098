package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/pkg/anthropic"
)

// sectionSystemContract is the shared system prompt for all section calls.
// The no-fabrication rules are the core of the product: the report must
// only ever state what the gathered data supports.
const sectionSystemContract = `You are a used-car buying advisor writing one section of a purchase report.

Rules:
- Use ONLY the data provided in the user message. Never invent specifics: no made-up prices, model years, issue names, or statistics.
- If the provided evidence is marked NO_EVIDENCE_FOUND or is too thin to support a claim, say so plainly instead of filling the gap.
- Ground every claim in the provided data. General mechanical knowledge is fine for framing, not for specifics.
- Write for a first-time buyer: plain language, no jargon without a gloss.
- Respond with a single JSON object matching the requested schema exactly. No markdown fences, no commentary outside the JSON.`

// generateSection runs one section call, retrying on truncation or
// unparseable output with the next token budget in the policy. The returned
// usage covers every attempt, including failed ones.
func (p *Pipeline) generateSection(ctx context.Context, sc sectionContext) (json.RawMessage, model.TokenUsage, error) {
	prompt := fmt.Sprintf(`Section: %s

Data:
%s

Respond with a JSON object matching this schema:
%s`, sc.Name, sc.Context, sc.Schema)

	if sc.NoEvidence {
		prompt += "\n\nThe evidence for this section is missing. Produce the honest fallback: state what could not be determined and what the buyer can do to find out themselves. Keep the schema."
	}

	var (
		usage   model.TokenUsage
		lastErr error
	)
	for attempt := 0; attempt < p.budgets.Attempts(); attempt++ {
		resp, err := p.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       p.cfg.Anthropic.Model,
			MaxTokens:   p.budgets.Budget(attempt),
			System:      anthropic.BuildCachedSystemBlocks(sectionSystemContract),
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &p.cfg.Anthropic.Temperature,
		})
		if err != nil {
			return nil, usage, eris.Wrap(err, fmt.Sprintf("generate %s", sc.Name))
		}

		usage.Add(model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		})
		resp.Usage.LogCost(p.cfg.Anthropic.Model, string(sc.Name))

		if resp.Truncated() {
			lastErr = eris.Errorf("generate %s: truncated at %d tokens", sc.Name, p.budgets.Budget(attempt))
			zap.L().Warn("section output truncated, retrying with larger budget",
				zap.String("section", string(sc.Name)),
				zap.Int64("budget", p.budgets.Budget(attempt)),
				zap.Int("attempt", attempt+1))
			continue
		}

		cleaned := cleanJSON(resp.Text())
		if !json.Valid([]byte(cleaned)) {
			lastErr = eris.Errorf("generate %s: response is not valid JSON", sc.Name)
			zap.L().Warn("section output unparseable, retrying",
				zap.String("section", string(sc.Name)),
				zap.Int("attempt", attempt+1))
			continue
		}

		return json.RawMessage(cleaned), usage, nil
	}

	return nil, usage, lastErr
}
