package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/brandpulse-backend/internal/data/repos"
	"github.com/yungbote/brandpulse-backend/internal/data/repos/testutil"
	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
)

func newProjectServices(t *testing.T) (ProjectService, PromptSetService) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	r := repos.New(db, log)
	return NewProjectService(db, log, r.Project, r.BatchExecution), NewPromptSetService(db, log, r.Project, r.PromptSet)
}

func TestProjectLifecycle(t *testing.T) {
	projects, _ := newProjectServices(t)
	ctx := context.Background()

	if _, err := projects.Create(ctx, ProjectInput{Name: "  "}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("blank name: %v", err)
	}

	p, err := projects.Create(ctx, ProjectInput{
		Name:        " Acme ",
		Industry:    "running shoes",
		Competitors: []string{"Zoom", " zoom", "", "Stride"},
		Attributes:  []string{"lightweight"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name != "Acme" || len(p.Competitors) != 2 || p.Competitors[1] != "Stride" {
		t.Fatalf("unexpected project: %+v", p)
	}

	market := "Germany"
	competitors := []string{"Pace"}
	updated, err := projects.Update(ctx, p.ID, ProjectPatch{Market: &market, Competitors: &competitors})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Market != "Germany" || updated.Industry != "running shoes" || len(updated.Competitors) != 1 {
		t.Fatalf("unexpected update: %+v", updated)
	}
	blank := ""
	if _, err := projects.Update(ctx, p.ID, ProjectPatch{Name: &blank}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("blank rename: %v", err)
	}

	list, err := projects.List(ctx, 10, 0)
	if err != nil || len(list) != 1 || list[0].LatestBatch != nil {
		t.Fatalf("List: %+v %v", list, err)
	}

	if err := projects.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := projects.Get(ctx, p.ID); statusOf(err) != http.StatusNotFound {
		t.Fatalf("deleted project should 404: %v", err)
	}
	if err := projects.Delete(ctx, uuid.New()); statusOf(err) != http.StatusNotFound {
		t.Fatalf("unknown delete: %v", err)
	}
}

func TestPromptSetReplace(t *testing.T) {
	projects, sets := newProjectServices(t)
	ctx := context.Background()
	p, err := projects.Create(ctx, ProjectInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cases := []struct {
		name     string
		pipeline string
		in       PromptSetInput
		status   int
	}{
		{"unknown pipeline", "pricing", PromptSetInput{Prompts: []string{"x"}}, http.StatusBadRequest},
		{"empty prompts", "visibility", PromptSetInput{Prompts: []string{" ", ""}}, http.StatusBadRequest},
		{"bad source", "visibility", PromptSetInput{Prompts: []string{"x"}, Source: "scraped"}, http.StatusBadRequest},
		{"comparison without competitor", "competition", PromptSetInput{Prompts: []string{"{brand} or {competitor}?", "{brand} vs {competitors}?"}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := sets.Replace(ctx, p.ID, tc.pipeline, tc.in); statusOf(err) != tc.status {
				t.Fatalf("got %v want status %d", err, tc.status)
			}
		})
	}

	set, err := sets.Replace(ctx, p.ID, "visibility", PromptSetInput{Prompts: []string{"Best {industry}?", " "}})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if set.PipelineType != brand.PipelineSpontaneous || set.Version != 1 || len(set.Prompts) != 1 || set.Source != PromptSourceManual {
		t.Fatalf("unexpected set: %+v", set)
	}
	set, err = sets.Replace(ctx, p.ID, "spontaneous", PromptSetInput{Prompts: []string{"a", "b"}, Source: "generated"})
	if err != nil {
		t.Fatalf("Replace again: %v", err)
	}
	if set.Version != 2 || len(set.Prompts) != 2 || set.Source != PromptSourceGenerated {
		t.Fatalf("expected version bump: %+v", set)
	}

	all, err := sets.List(ctx, p.ID)
	if err != nil || len(all) != 1 {
		t.Fatalf("List: %v %v", all, err)
	}
	if _, err := sets.List(ctx, uuid.New()); statusOf(err) != http.StatusNotFound {
		t.Fatalf("unknown project: %v", err)
	}
}
