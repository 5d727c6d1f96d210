package brand

import "strings"

// Canonical pipeline (and result type) names.
const (
	PipelineSpontaneous = "spontaneous"
	PipelineSentiment   = "sentiment"
	PipelineComparison  = "comparison"
	PipelineAccuracy    = "accuracy"
)

// CompetitorPlaceholder marks a comparison prompt that expands once per competitor.
const CompetitorPlaceholder = "{competitor}"

// Pipelines lists every pipeline in execution order.
var Pipelines = []string{PipelineSpontaneous, PipelineSentiment, PipelineComparison, PipelineAccuracy}

var pipelineAliases = map[string]string{
	"spontaneous": PipelineSpontaneous,
	"visibility":  PipelineSpontaneous,
	"sentiment":   PipelineSentiment,
	"comparison":  PipelineComparison,
	"competition": PipelineComparison,
	"accuracy":    PipelineAccuracy,
	"alignment":   PipelineAccuracy,
}

// CanonicalPipeline resolves a pipeline or result type name, accepting aliases.
func CanonicalPipeline(name string) (string, bool) {
	c, ok := pipelineAliases[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// NormalizePipelines canonicalises and dedupes names, keeping execution order.
// An empty input selects every pipeline. Unknown names are returned separately.
func NormalizePipelines(names []string) (pipelines []string, unknown []string) {
	if len(names) == 0 {
		return append([]string(nil), Pipelines...), nil
	}
	want := map[string]bool{}
	for _, n := range names {
		c, ok := CanonicalPipeline(n)
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		want[c] = true
	}
	for _, p := range Pipelines {
		if want[p] {
			pipelines = append(pipelines, p)
		}
	}
	return pipelines, unknown
}
