package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

// topicQueries builds the web-search queries for one research topic. Each
// topic runs a small fixed set of complementary phrasings.
func topicQueries(topic model.ResearchTopic, id *model.VehicleIdentity, perTopic int) []string {
	vehicle := id.Label()
	var queries []string
	switch topic {
	case model.TopicGenerationFacts:
		queries = []string{
			fmt.Sprintf("%s generation changes known problems reliability", vehicle),
			fmt.Sprintf("%s common issues model year differences", vehicle),
		}
	case model.TopicOwnerFeedback:
		queries = []string{
			fmt.Sprintf("%s owner review long term forum", vehicle),
			fmt.Sprintf("%s real owner experience complaints praise", vehicle),
		}
	case model.TopicBuyingTips:
		queries = []string{
			fmt.Sprintf("%s used buying guide what to check", vehicle),
			fmt.Sprintf("%s pre purchase inspection negotiation tips", vehicle),
		}
	}
	if perTopic > 0 && perTopic < len(queries) {
		queries = queries[:perTopic]
	}
	return queries
}

// Research fans out web searches across all topics concurrently and
// assembles a source-tagged evidence bundle. Every topic always ends up
// with an entry: real findings, or the explicit no-evidence marker so that
// downstream generation can say "nothing found" instead of inventing.
func (p *Pipeline) Research(ctx context.Context, id *model.VehicleIdentity) (model.ResearchBundle, error) {
	bundle := make(model.ResearchBundle, len(model.AllTopics))
	if p.exa == nil {
		for _, topic := range model.AllTopics {
			bundle[topic] = model.NoEvidenceMarker
		}
		return bundle, nil
	}

	if secs := p.cfg.Research.TimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	var mu sync.Mutex
	found := make(map[model.ResearchTopic][]string, len(model.AllTopics))

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range model.AllTopics {
		for _, query := range topicQueries(topic, id, p.cfg.Research.QueriesPerTopic) {
			g.Go(func() error {
				results, err := p.exa.Search(gctx, query, p.cfg.Research.ResultsPerQuery)
				if err != nil {
					zap.L().Warn("research query failed",
						zap.String("topic", string(topic)),
						zap.String("query", query),
						zap.Error(err))
					return nil
				}
				mu.Lock()
				defer mu.Unlock()
				for _, r := range results {
					item := formatFinding(r.Text, r.URL, p.cfg.Research.SnippetMaxChars)
					if item != "" {
						found[topic] = append(found[topic], item)
					}
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	maxItems := p.cfg.Research.MaxItemsPerTopic
	for _, topic := range model.AllTopics {
		items := dedupeFindings(found[topic])
		if maxItems > 0 && len(items) > maxItems {
			items = items[:maxItems]
		}
		if len(items) == 0 {
			bundle[topic] = model.NoEvidenceMarker
			continue
		}
		bundle[topic] = strings.Join(items, "\n\n")
	}

	zap.L().Info("research complete",
		zap.String("vehicle", id.Label()),
		zap.Bool("generation_facts", bundle.HasEvidence(model.TopicGenerationFacts)),
		zap.Bool("owner_feedback", bundle.HasEvidence(model.TopicOwnerFeedback)),
		zap.Bool("buying_tips", bundle.HasEvidence(model.TopicBuyingTips)))
	return bundle, nil
}

// formatFinding truncates a result snippet and tags it with its source URL
// so the generated sections can be traced back to evidence.
func formatFinding(text, sourceURL string, maxChars int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if maxChars > 0 && len(text) > maxChars {
		cut := maxChars
		// Back up to a rune boundary so the cut never leaves invalid UTF-8.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return fmt.Sprintf("%s\n[source: %s]", text, sourceURL)
}

// dedupeFindings drops findings from a URL already seen. Queries within a
// topic overlap, so the same page frequently comes back twice.
func dedupeFindings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		idx := strings.LastIndex(item, "[source: ")
		key := item
		if idx >= 0 {
			key = item[idx:]
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
