package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/brandpulse-backend/internal/analytics"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
)

// Builtin scores responses with literal text matching only. It exists so the
// system produces results without an external scoring service.
type Builtin struct{}

func NewBuiltin() *Builtin { return &Builtin{} }

func (b *Builtin) Analyze(ctx context.Context, in Input) (json.RawMessage, error) {
	if in.Project == nil {
		return nil, fmt.Errorf("analyze %s: missing project", in.Pipeline)
	}
	var payload any
	switch in.Pipeline {
	case brand.PipelineSpontaneous:
		payload = visibility(in.Project, in.Responses)
	case brand.PipelineSentiment:
		payload = sentiment(in.Responses)
	case brand.PipelineComparison:
		payload = comparison(in.Project, in.Responses)
	case brand.PipelineAccuracy:
		payload = accuracy(in.Project, in.Responses)
	default:
		return nil, fmt.Errorf("analyze: unknown pipeline %q", in.Pipeline)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", in.Pipeline, err)
	}
	return raw, nil
}

// byProvider groups usable responses by provider in first-seen order.
func byProvider(rows []*types.ProviderResponse) ([]string, map[string][]*types.ProviderResponse, map[string]string) {
	var order []string
	groups := map[string][]*types.ProviderResponse{}
	models := map[string]string{}
	for _, r := range rows {
		if r == nil {
			continue
		}
		if _, ok := groups[r.Provider]; !ok {
			order = append(order, r.Provider)
			groups[r.Provider] = nil
			models[r.Provider] = r.Model
		}
		if r.Failed() {
			continue
		}
		groups[r.Provider] = append(groups[r.Provider], r)
	}
	return order, groups, models
}

func visibility(p *types.Project, rows []*types.ProviderResponse) analytics.VisibilityPayload {
	out := analytics.VisibilityPayload{
		Brand:              p.Name,
		Providers:          []analytics.VisibilityProviderPayload{},
		CompetitorMentions: map[string]analytics.Number{},
	}
	competitors := cleanNames(p.Competitors)
	for _, c := range competitors {
		out.CompetitorMentions[c] = 0
	}
	order, groups, models := byProvider(rows)
	for _, name := range order {
		pp := analytics.VisibilityProviderPayload{Provider: name, Model: models[name], Positions: []analytics.Number{}}
		for _, r := range groups[name] {
			text := stripMarkers(r.ResponseText)
			pp.Prompts++
			if pos := brandPosition(text, p.Name, competitors); pos > 0 {
				pp.Mentions++
				pp.Positions = append(pp.Positions, analytics.Number(pos))
			}
			for _, c := range competitors {
				if mentions(text, c) {
					out.CompetitorMentions[c]++
				}
			}
		}
		out.Providers = append(out.Providers, pp)
	}
	return out
}

func sentiment(rows []*types.ProviderResponse) analytics.SentimentPayload {
	out := analytics.SentimentPayload{Providers: []analytics.SentimentProviderPayload{}}
	order, groups, models := byProvider(rows)
	for _, name := range order {
		pp := analytics.SentimentProviderPayload{Provider: name, Model: models[name], Scores: []analytics.Number{}, Labels: []string{}}
		for _, r := range groups[name] {
			score, label, ok := parseSentiment(r.ResponseText)
			if !ok {
				continue
			}
			pp.Scores = append(pp.Scores, analytics.Number(score))
			pp.Labels = append(pp.Labels, label)
		}
		out.Providers = append(out.Providers, pp)
	}
	return out
}

func comparison(p *types.Project, rows []*types.ProviderResponse) analytics.ComparisonPayload {
	out := analytics.ComparisonPayload{Brand: p.Name, Matchups: []analytics.MatchupPayload{}}
	order, groups, _ := byProvider(rows)
	for _, name := range order {
		for _, r := range groups[name] {
			if strings.TrimSpace(r.Subject) == "" {
				out.Unscored++
				continue
			}
			outcome, ok := parseWinner(r.ResponseText, p.Name, r.Subject)
			if !ok {
				continue
			}
			out.Matchups = append(out.Matchups, analytics.MatchupPayload{
				Competitor: r.Subject,
				Provider:   name,
				Outcome:    outcome,
			})
		}
	}
	return out
}

// expectedFacts are the identity-card values an accurate answer should state.
func expectedFacts(p *types.Project) []string {
	return cleanNames(append([]string{p.Industry, p.Market}, p.Attributes...))
}

func accuracy(p *types.Project, rows []*types.ProviderResponse) analytics.AccuracyPayload {
	out := analytics.AccuracyPayload{Providers: []analytics.AccuracyProviderPayload{}}
	facts := expectedFacts(p)
	order, groups, models := byProvider(rows)
	for _, name := range order {
		pp := analytics.AccuracyProviderPayload{Provider: name, Model: models[name], Checks: []analytics.AttributeCheck{}}
		for _, r := range groups[name] {
			text := strings.ToLower(r.ResponseText)
			check := facts
			if s := strings.TrimSpace(r.Subject); s != "" {
				check = []string{s}
			}
			for _, f := range check {
				pp.Checks = append(pp.Checks, analytics.AttributeCheck{
					Attribute: f,
					Matched:   strings.Contains(text, strings.ToLower(f)),
				})
			}
		}
		out.Providers = append(out.Providers, pp)
	}
	return out
}

func cleanNames(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}
