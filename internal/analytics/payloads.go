package analytics

// Payload types are the result shapes produced by the analyzers and stored
// in batch_result.result. View models are derived from them.

type skipMarker struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}

type VisibilityPayload struct {
	skipMarker
	Brand              string                      `json:"brand"`
	Providers          []VisibilityProviderPayload `json:"providers"`
	CompetitorMentions map[string]Number           `json:"competitorMentions"`
}

type VisibilityProviderPayload struct {
	Provider  string   `json:"provider"`
	Model     string   `json:"model,omitempty"`
	Prompts   Number   `json:"prompts"`
	Mentions  Number   `json:"mentions"`
	Positions []Number `json:"positions,omitempty"`
}

type SentimentPayload struct {
	skipMarker
	Providers []SentimentProviderPayload `json:"providers"`
}

type SentimentProviderPayload struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model,omitempty"`
	Scores   []Number `json:"scores"`
	Labels   []string `json:"labels,omitempty"`
}

type ComparisonPayload struct {
	skipMarker
	Brand    string           `json:"brand"`
	Matchups []MatchupPayload `json:"matchups"`
	// Unscored counts answers with no competitor to score the verdict against.
	Unscored int `json:"unscored,omitempty"`
}

const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
	OutcomeTie  = "tie"
)

type MatchupPayload struct {
	Competitor string `json:"competitor"`
	Provider   string `json:"provider"`
	Outcome    string `json:"outcome"`
}

type AccuracyPayload struct {
	skipMarker
	Providers []AccuracyProviderPayload `json:"providers"`
}

type AccuracyProviderPayload struct {
	Provider string           `json:"provider"`
	Model    string           `json:"model,omitempty"`
	Checks   []AttributeCheck `json:"checks"`
}

type AttributeCheck struct {
	Attribute string `json:"attribute"`
	Matched   bool   `json:"matched"`
}
