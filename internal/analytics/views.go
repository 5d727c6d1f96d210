package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
)

// Sentiment score thresholds for labelling.
const (
	positiveThreshold = 0.2
	negativeThreshold = -0.2
)

type VisibilityView struct {
	Brand              string                   `json:"brand"`
	Providers          []ProviderVisibility     `json:"providers"`
	OverallMentionRate float64                  `json:"overallMentionRate"`
	AveragePosition    float64                  `json:"averagePosition"`
	CompetitorMentions []CompetitorMentionCount `json:"competitorMentions"`
	ShareOfVoice       float64                  `json:"shareOfVoice"`
}

type ProviderVisibility struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model,omitempty"`
	Prompts         int     `json:"prompts"`
	Mentions        int     `json:"mentions"`
	MentionRate     float64 `json:"mentionRate"`
	AveragePosition float64 `json:"averagePosition"`
}

type CompetitorMentionCount struct {
	Name     string `json:"name"`
	Mentions int    `json:"mentions"`
}

type SentimentView struct {
	Providers    []ProviderSentiment `json:"providers"`
	AverageScore float64             `json:"averageScore"`
	Label        string              `json:"label"`
	Positive     int                 `json:"positive"`
	Neutral      int                 `json:"neutral"`
	Negative     int                 `json:"negative"`
}

type ProviderSentiment struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model,omitempty"`
	Responses    int     `json:"responses"`
	AverageScore float64 `json:"averageScore"`
	Positive     int     `json:"positive"`
	Neutral      int     `json:"neutral"`
	Negative     int     `json:"negative"`
}

type ComparisonView struct {
	Brand          string              `json:"brand"`
	Competitors    []CompetitorRecord  `json:"competitors"`
	Providers      []ProviderWinRecord `json:"providers"`
	OverallWinRate float64             `json:"overallWinRate"`
}

type CompetitorRecord struct {
	Name    string  `json:"name"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Ties    int     `json:"ties"`
	WinRate float64 `json:"winRate"`
}

type ProviderWinRecord struct {
	Provider string  `json:"provider"`
	Wins     int     `json:"wins"`
	Games    int     `json:"games"`
	WinRate  float64 `json:"winRate"`
}

type AccuracyView struct {
	Providers       []ProviderAccuracy `json:"providers"`
	Attributes      []AttributeMatch   `json:"attributes"`
	AverageAccuracy float64            `json:"averageAccuracy"`
}

type ProviderAccuracy struct {
	Provider string  `json:"provider"`
	Model    string  `json:"model,omitempty"`
	Checked  int     `json:"checked"`
	Matched  int     `json:"matched"`
	Accuracy float64 `json:"accuracy"`
}

type AttributeMatch struct {
	Name      string  `json:"name"`
	MatchRate float64 `json:"matchRate"`
}

// Report bundles the four views. A view is nil when its result is missing or skipped.
type Report struct {
	Visibility *VisibilityView `json:"visibility"`
	Sentiment  *SentimentView  `json:"sentiment"`
	Comparison *ComparisonView `json:"comparison"`
	Accuracy   *AccuracyView   `json:"accuracy"`
	Missing    []string        `json:"missing,omitempty"`
}

// BuildReport decodes every known result type. Missing and skipped pipelines
// are listed in Missing; a malformed result is an error.
func BuildReport(results []Result) (*Report, error) {
	rep := &Report{}
	for _, kind := range brand.Pipelines {
		res, ok := FindResult(results, kind)
		if !ok {
			rep.Missing = append(rep.Missing, kind)
			continue
		}
		var err error
		switch kind {
		case brand.PipelineSpontaneous:
			rep.Visibility, err = Visibility(res.Result)
		case brand.PipelineSentiment:
			rep.Sentiment, err = Sentiment(res.Result)
		case brand.PipelineComparison:
			rep.Comparison, err = Comparison(res.Result)
		case brand.PipelineAccuracy:
			rep.Accuracy, err = Accuracy(res.Result)
		}
		if err != nil {
			return nil, fmt.Errorf("%s result: %w", kind, err)
		}
		if rep.viewMissing(kind) {
			rep.Missing = append(rep.Missing, kind)
		}
	}
	return rep, nil
}

func (r *Report) viewMissing(kind string) bool {
	switch kind {
	case brand.PipelineSpontaneous:
		return r.Visibility == nil
	case brand.PipelineSentiment:
		return r.Sentiment == nil
	case brand.PipelineComparison:
		return r.Comparison == nil
	case brand.PipelineAccuracy:
		return r.Accuracy == nil
	}
	return true
}

func decode(raw json.RawMessage, dst any) error {
	obj, err := NormalizeJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(obj, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return nil
}

func Visibility(raw json.RawMessage) (*VisibilityView, error) {
	var p VisibilityPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Skipped {
		return nil, nil
	}
	v := &VisibilityView{Brand: p.Brand, Providers: []ProviderVisibility{}, CompetitorMentions: []CompetitorMentionCount{}}
	var (
		totalPrompts, totalMentions int
		positions                   []float64
	)
	for _, pp := range p.Providers {
		pv := ProviderVisibility{
			Provider: pp.Provider,
			Model:    pp.Model,
			Prompts:  pp.Prompts.Int(),
			Mentions: pp.Mentions.Int(),
		}
		pv.MentionRate = ratio(pv.Mentions, pv.Prompts)
		ps := floats(pp.Positions)
		pv.AveragePosition = mean(ps)
		positions = append(positions, ps...)
		totalPrompts += pv.Prompts
		totalMentions += pv.Mentions
		v.Providers = append(v.Providers, pv)
	}
	v.OverallMentionRate = ratio(totalMentions, totalPrompts)
	v.AveragePosition = mean(positions)

	competitorTotal := 0
	for name, n := range p.CompetitorMentions {
		v.CompetitorMentions = append(v.CompetitorMentions, CompetitorMentionCount{Name: name, Mentions: n.Int()})
		competitorTotal += n.Int()
	}
	sort.Slice(v.CompetitorMentions, func(i, j int) bool {
		a, b := v.CompetitorMentions[i], v.CompetitorMentions[j]
		if a.Mentions != b.Mentions {
			return a.Mentions > b.Mentions
		}
		return a.Name < b.Name
	})
	v.ShareOfVoice = ratio(totalMentions, totalMentions+competitorTotal)
	return v, nil
}

func Sentiment(raw json.RawMessage) (*SentimentView, error) {
	var p SentimentPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Skipped {
		return nil, nil
	}
	v := &SentimentView{Providers: []ProviderSentiment{}}
	var all []float64
	for _, pp := range p.Providers {
		scores := floats(pp.Scores)
		ps := ProviderSentiment{
			Provider:     pp.Provider,
			Model:        pp.Model,
			Responses:    len(scores),
			AverageScore: mean(scores),
		}
		for i, s := range scores {
			label := ""
			if i < len(pp.Labels) {
				label = strings.ToLower(strings.TrimSpace(pp.Labels[i]))
			}
			if label == "" {
				label = SentimentLabel(s)
			}
			switch label {
			case "positive":
				ps.Positive++
			case "negative":
				ps.Negative++
			default:
				ps.Neutral++
			}
		}
		v.Positive += ps.Positive
		v.Neutral += ps.Neutral
		v.Negative += ps.Negative
		all = append(all, scores...)
		v.Providers = append(v.Providers, ps)
	}
	v.AverageScore = mean(all)
	v.Label = SentimentLabel(v.AverageScore)
	return v, nil
}

// SentimentLabel buckets a score in [-1, 1].
func SentimentLabel(score float64) string {
	switch {
	case score > positiveThreshold:
		return "positive"
	case score < negativeThreshold:
		return "negative"
	default:
		return "neutral"
	}
}

func Comparison(raw json.RawMessage) (*ComparisonView, error) {
	var p ComparisonPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Skipped {
		return nil, nil
	}
	v := &ComparisonView{Brand: p.Brand, Competitors: []CompetitorRecord{}, Providers: []ProviderWinRecord{}}
	compIdx := map[string]int{}
	provIdx := map[string]int{}
	wins, games := 0, 0
	for _, m := range p.Matchups {
		outcome := strings.ToLower(strings.TrimSpace(m.Outcome))
		if outcome != OutcomeWin && outcome != OutcomeLoss && outcome != OutcomeTie {
			continue
		}
		ci, ok := compIdx[m.Competitor]
		if !ok {
			ci = len(v.Competitors)
			compIdx[m.Competitor] = ci
			v.Competitors = append(v.Competitors, CompetitorRecord{Name: m.Competitor})
		}
		pi, ok := provIdx[m.Provider]
		if !ok {
			pi = len(v.Providers)
			provIdx[m.Provider] = pi
			v.Providers = append(v.Providers, ProviderWinRecord{Provider: m.Provider})
		}
		c := &v.Competitors[ci]
		pr := &v.Providers[pi]
		switch outcome {
		case OutcomeWin:
			c.Wins++
			pr.Wins++
			wins++
		case OutcomeLoss:
			c.Losses++
		case OutcomeTie:
			c.Ties++
		}
		pr.Games++
		games++
	}
	for i := range v.Competitors {
		c := &v.Competitors[i]
		c.WinRate = WinRate(c.Wins, c.Losses, c.Ties)
	}
	for i := range v.Providers {
		v.Providers[i].WinRate = ratio(v.Providers[i].Wins, v.Providers[i].Games)
	}
	v.OverallWinRate = ratio(wins, games)
	return v, nil
}

// WinRate is wins over all decided and tied games, 0 when none were played.
func WinRate(wins, losses, ties int) float64 {
	return ratio(wins, wins+losses+ties)
}

func Accuracy(raw json.RawMessage) (*AccuracyView, error) {
	var p AccuracyPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Skipped {
		return nil, nil
	}
	v := &AccuracyView{Providers: []ProviderAccuracy{}, Attributes: []AttributeMatch{}}
	type tally struct{ matched, total int }
	attrs := map[string]*tally{}
	var order []string
	var accs []float64
	for _, pp := range p.Providers {
		pa := ProviderAccuracy{Provider: pp.Provider, Model: pp.Model, Checked: len(pp.Checks)}
		for _, c := range pp.Checks {
			if c.Matched {
				pa.Matched++
			}
			t, ok := attrs[c.Attribute]
			if !ok {
				t = &tally{}
				attrs[c.Attribute] = t
				order = append(order, c.Attribute)
			}
			t.total++
			if c.Matched {
				t.matched++
			}
		}
		pa.Accuracy = ratio(pa.Matched, pa.Checked)
		if pa.Checked > 0 {
			accs = append(accs, pa.Accuracy)
		}
		v.Providers = append(v.Providers, pa)
	}
	for _, name := range order {
		t := attrs[name]
		v.Attributes = append(v.Attributes, AttributeMatch{Name: name, MatchRate: ratio(t.matched, t.total)})
	}
	v.AverageAccuracy = mean(accs)
	return v, nil
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return round4(float64(n) / float64(d))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return round4(sum / float64(len(xs)))
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

func floats(ns []Number) []float64 {
	out := make([]float64, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Float())
	}
	return out
}
