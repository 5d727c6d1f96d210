package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/yungbote/brandpulse-backend/internal/analytics"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

func TestEdgesFromComparison(t *testing.T) {
	project := &types.Project{Name: "Acme", Competitors: []string{"Zoom", "Stride", "Pace"}}
	view, err := analytics.Comparison(json.RawMessage(`{"brand":"Acme","matchups":[
		{"competitor":"Zoom","provider":"openai","outcome":"win"},
		{"competitor":"Zoom","provider":"gemini","outcome":"loss"},
		{"competitor":"Stride","provider":"openai","outcome":"tie"}
	]}`))
	if err != nil {
		t.Fatalf("Comparison: %v", err)
	}
	execID := uuid.MustParse("2b0d7c8e-3a53-4d0c-9a49-0c3e4b0d3f11")
	got := EdgesFromComparison(project, view, execID)
	want := []CompetitionEdge{
		{Brand: "Acme", Competitor: "Pace", BatchExecutionID: execID.String()},
		{Brand: "Acme", Competitor: "Stride", Ties: 1, BatchExecutionID: execID.String()},
		{Brand: "Acme", Competitor: "Zoom", Wins: 1, Losses: 1, WinRate: 0.5, BatchExecutionID: execID.String()},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("edges mismatch (-want +got):\n%s", diff)
	}
	if EdgesFromComparison(nil, view, execID) != nil {
		t.Fatalf("nil project should yield nil")
	}
}

func TestDisabledGraphIsNoop(t *testing.T) {
	g := NewCompetitionGraph(nil, logger.Nop())
	if g.Enabled() {
		t.Fatalf("graph without client should be disabled")
	}
	if err := g.SyncComparison(context.Background(), &types.Project{Name: "Acme"}, nil, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("SyncComparison: %v", err)
	}
	edges, err := g.Edges(context.Background(), &types.Project{Name: "Acme"})
	if err != nil || edges != nil {
		t.Fatalf("Edges: %v %v", edges, err)
	}
}
