package steps

import (
	"strings"

	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
)

const (
	phBrand       = "{brand}"
	phIndustry    = "{industry}"
	phMarket      = "{market}"
	phCompetitor  = brand.CompetitorPlaceholder
	phCompetitors = "{competitors}"
	phAttribute   = "{attribute}"
)

// ExpandedPrompt is one concrete question sent to every selected provider.
// Subject is the competitor or attribute the prompt was expanded for.
type ExpandedPrompt struct {
	Index   int
	Text    string
	Subject string
}

// ExpandPrompts substitutes identity-card placeholders into templates. A
// template with {competitor} yields one prompt per competitor and one with
// {attribute} yields one prompt per attribute; with no values to expand it
// yields nothing.
func ExpandPrompts(project *types.Project, templates []string) []ExpandedPrompt {
	if project == nil {
		return nil
	}
	competitors := cleanList(project.Competitors)
	attributes := cleanList(project.Attributes)
	base := strings.NewReplacer(
		phBrand, strings.TrimSpace(project.Name),
		phIndustry, strings.TrimSpace(project.Industry),
		phMarket, strings.TrimSpace(project.Market),
		phCompetitors, strings.Join(competitors, ", "),
	)

	var out []ExpandedPrompt
	add := func(text, subject string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		out = append(out, ExpandedPrompt{Index: len(out), Text: text, Subject: subject})
	}
	for _, tpl := range templates {
		tpl = base.Replace(tpl)
		switch {
		case strings.Contains(tpl, phCompetitor):
			for _, c := range competitors {
				add(expandSubject(tpl, phCompetitor, c, attributes), c)
			}
		case strings.Contains(tpl, phAttribute):
			for _, a := range attributes {
				add(strings.ReplaceAll(tpl, phAttribute, a), a)
			}
		default:
			add(tpl, "")
		}
	}
	return out
}

// A template naming both placeholders is expanded by competitor; any
// {attribute} left over becomes the joined attribute list.
func expandSubject(tpl, placeholder, value string, attributes []string) string {
	s := strings.ReplaceAll(tpl, placeholder, value)
	return strings.ReplaceAll(s, phAttribute, strings.Join(attributes, ", "))
}

func cleanList(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// SystemPrompt returns the output-format instruction a pipeline needs from
// providers. Spontaneous and accuracy prompts are sent without one.
func SystemPrompt(pipeline string, project *types.Project) string {
	name := ""
	if project != nil {
		name = strings.TrimSpace(project.Name)
	}
	switch pipeline {
	case brand.PipelineSentiment:
		return "After your answer, add one final line exactly in this form:\n" +
			`SENTIMENT_JSON: {"score": <number from -1 to 1>, "label": "positive|neutral|negative"}` + "\n" +
			"The score is your overall sentiment towards " + name + "."
	case brand.PipelineComparison:
		return "After your answer, add one final line exactly in this form:\n" +
			"WINNER: <name>\n" +
			"where <name> is " + name + ", the competitor named in the question, or tie."
	}
	return ""
}
