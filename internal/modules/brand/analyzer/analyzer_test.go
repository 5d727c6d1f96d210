package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/yungbote/brandpulse-backend/internal/analytics"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

func project() *types.Project {
	return &types.Project{
		Name:        "Acme",
		Industry:    "running shoes",
		Market:      "Germany",
		Competitors: []string{"Zoom", "Stride"},
		Attributes:  []string{"sustainable"},
	}
}

func TestBrandPosition(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"Top picks: Zoom, then ACME and Stride.", 2},
		{"acme leads, Zoom follows", 1},
		{"Acmeology is not a brand", 0},
		{"Stride, Zoom, and finally Acme.", 3},
		{"", 0},
	}
	for _, tc := range cases {
		if got := brandPosition(tc.text, "Acme", []string{"Zoom", "Stride"}); got != tc.want {
			t.Fatalf("brandPosition(%q) = %d want %d", tc.text, got, tc.want)
		}
	}
}

func TestParseSentiment(t *testing.T) {
	score, label, ok := parseSentiment("Great shoes.\nSENTIMENT_JSON: {\"score\": 0.8, \"label\": \"Positive\"}")
	if !ok || score != 0.8 || label != "positive" {
		t.Fatalf("got %v %q %v", score, label, ok)
	}
	score, label, ok = parseSentiment("meh\n**sentiment_json:** `{\"score\": \"-3\"}`")
	if !ok || score != -1 || label != "negative" {
		t.Fatalf("clamped string score: %v %q %v", score, label, ok)
	}
	if _, _, ok := parseSentiment("no marker here"); ok {
		t.Fatalf("missing marker should not parse")
	}
}

func TestParseWinner(t *testing.T) {
	cases := []struct {
		text    string
		outcome string
		ok      bool
	}{
		{"Long answer\nWINNER: Acme", analytics.OutcomeWin, true},
		{"WINNER: zoom.", analytics.OutcomeLoss, true},
		{"**WINNER:** Tie", analytics.OutcomeTie, true},
		{"ııııııııııı winner: tie", analytics.OutcomeTie, true},
		{"WINNER: Stride", "", false},
		{"no verdict", "", false},
	}
	for _, tc := range cases {
		got, ok := parseWinner(tc.text, "Acme", "Zoom")
		if got != tc.outcome || ok != tc.ok {
			t.Fatalf("parseWinner(%q) = %q,%v want %q,%v", tc.text, got, ok, tc.outcome, tc.ok)
		}
	}
}

func TestBuiltinVisibility(t *testing.T) {
	rows := []*types.ProviderResponse{
		{Provider: "openai", Model: "gpt", ResponseText: "Zoom and Acme are popular."},
		{Provider: "openai", Model: "gpt", ResponseText: "Stride is great."},
		{Provider: "gemini", Model: "flash", ResponseText: "Acme first."},
		{Provider: "gemini", Model: "flash", Error: "timeout"},
	}
	raw, err := NewBuiltin().Analyze(context.Background(), Input{Pipeline: brand.PipelineSpontaneous, Project: project(), Responses: rows})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	v, err := analytics.Visibility(raw)
	if err != nil {
		t.Fatalf("Visibility: %v", err)
	}
	if len(v.Providers) != 2 || v.Providers[0].Provider != "openai" {
		t.Fatalf("providers: %+v", v.Providers)
	}
	if v.Providers[0].Prompts != 2 || v.Providers[0].Mentions != 1 || v.Providers[0].AveragePosition != 2 {
		t.Fatalf("openai visibility: %+v", v.Providers[0])
	}
	if v.Providers[1].Prompts != 1 || v.Providers[1].MentionRate != 1 {
		t.Fatalf("gemini visibility: %+v", v.Providers[1])
	}
	if v.OverallMentionRate != 0.6667 {
		t.Fatalf("overall mention rate: %v", v.OverallMentionRate)
	}
	// 2 brand mentions against Zoom 1 + Stride 1.
	if v.ShareOfVoice != 0.5 {
		t.Fatalf("share of voice: %v", v.ShareOfVoice)
	}
}

func TestBuiltinSentimentComparisonAccuracy(t *testing.T) {
	ctx := context.Background()
	b := NewBuiltin()

	raw, err := b.Analyze(ctx, Input{Pipeline: brand.PipelineSentiment, Project: project(), Responses: []*types.ProviderResponse{
		{Provider: "openai", ResponseText: "x\nSENTIMENT_JSON: {\"score\": 0.5, \"label\": \"positive\"}"},
		{Provider: "openai", ResponseText: "x\nSENTIMENT_JSON: {\"score\": -0.5}"},
		{Provider: "openai", ResponseText: "no line"},
	}})
	if err != nil {
		t.Fatalf("sentiment: %v", err)
	}
	s, _ := analytics.Sentiment(raw)
	if s.Providers[0].Responses != 2 || s.Positive != 1 || s.Negative != 1 || s.AverageScore != 0 {
		t.Fatalf("sentiment view: %+v", s)
	}

	raw, err = b.Analyze(ctx, Input{Pipeline: brand.PipelineComparison, Project: project(), Responses: []*types.ProviderResponse{
		{Provider: "openai", Subject: "Zoom", ResponseText: "WINNER: Acme"},
		{Provider: "gemini", Subject: "Zoom", ResponseText: "WINNER: Zoom"},
		{Provider: "gemini", Subject: "Stride", ResponseText: "WINNER: tie"},
		{Provider: "gemini", Subject: "", ResponseText: "WINNER: Acme"},
	}})
	if err != nil {
		t.Fatalf("comparison: %v", err)
	}
	var payload analytics.ComparisonPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Unscored != 1 || len(payload.Matchups) != 3 {
		t.Fatalf("comparison payload: %+v %v", payload, err)
	}
	c, _ := analytics.Comparison(raw)
	if len(c.Competitors) != 2 || c.Competitors[0].Name != "Zoom" || c.Competitors[0].WinRate != 0.5 {
		t.Fatalf("comparison view: %+v", c)
	}
	if c.OverallWinRate != 0.3333 {
		t.Fatalf("overall win rate: %v", c.OverallWinRate)
	}

	raw, err = b.Analyze(ctx, Input{Pipeline: brand.PipelineAccuracy, Project: project(), Responses: []*types.ProviderResponse{
		{Provider: "openai", ResponseText: "Acme makes running shoes in Germany."},
		{Provider: "gemini", Subject: "sustainable", ResponseText: "Yes, Acme is sustainable."},
	}})
	if err != nil {
		t.Fatalf("accuracy: %v", err)
	}
	a, _ := analytics.Accuracy(raw)
	if a.Providers[0].Checked != 3 || a.Providers[0].Accuracy != 0.6667 {
		t.Fatalf("openai accuracy: %+v", a.Providers[0])
	}
	if a.Providers[1].Accuracy != 1 {
		t.Fatalf("gemini accuracy: %+v", a.Providers[1])
	}
}

func TestBuiltinUnknownPipeline(t *testing.T) {
	if _, err := NewBuiltin().Analyze(context.Background(), Input{Pipeline: "pricing", Project: project()}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRemoteAnalyzer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze/sentiment" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var in Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		// String-encoded object is accepted.
		_, _ = w.Write([]byte(`"{\"providers\":[]}"`))
	}))
	defer srv.Close()

	a, err := New(logger.Nop(), Config{Mode: ModeRemote, URL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := a.Analyze(context.Background(), Input{Pipeline: "sentiment", Project: project()})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if string(raw) != `{"providers":[]}` || calls.Load() != 2 {
		t.Fatalf("unexpected result %s after %d calls", raw, calls.Load())
	}
}

func TestNewAnalyzerModes(t *testing.T) {
	if a, err := New(logger.Nop(), Config{}); err != nil || a == nil {
		t.Fatalf("default mode: %v", err)
	}
	if _, err := New(logger.Nop(), Config{Mode: ModeRemote}); err == nil {
		t.Fatalf("remote without url should fail")
	}
	if _, err := New(logger.Nop(), Config{Mode: "magic"}); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}
