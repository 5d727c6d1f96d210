package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/brandpulse-backend/internal/analytics"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/platform/neo4jdb"
)

// CompetitionEdge is the head-to-head record of the brand against one competitor.
type CompetitionEdge struct {
	Brand            string  `json:"brand"`
	Competitor       string  `json:"competitor"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	Ties             int     `json:"ties"`
	WinRate          float64 `json:"winRate"`
	BatchExecutionID string  `json:"batchExecutionId,omitempty"`
}

// EdgesFromComparison derives edges from a comparison view. Competitors on the
// identity card that never appeared get an empty edge so the graph is complete.
func EdgesFromComparison(project *types.Project, view *analytics.ComparisonView, execID uuid.UUID) []CompetitionEdge {
	if project == nil {
		return nil
	}
	byName := map[string]CompetitionEdge{}
	if view != nil {
		for _, c := range view.Competitors {
			byName[c.Name] = CompetitionEdge{
				Competitor: c.Name,
				Wins:       c.Wins,
				Losses:     c.Losses,
				Ties:       c.Ties,
				WinRate:    c.WinRate,
			}
		}
	}
	for _, name := range project.Competitors {
		if _, ok := byName[name]; !ok && name != "" {
			byName[name] = CompetitionEdge{Competitor: name}
		}
	}
	out := make([]CompetitionEdge, 0, len(byName))
	for _, e := range byName {
		e.Brand = project.Name
		if execID != uuid.Nil {
			e.BatchExecutionID = execID.String()
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Competitor < out[j].Competitor })
	return out
}

type CompetitionGraph struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewCompetitionGraph(client *neo4jdb.Client, log *logger.Logger) *CompetitionGraph {
	return &CompetitionGraph{client: client, log: log.With("graph", "Competition")}
}

func (g *CompetitionGraph) Enabled() bool { return g != nil && g.client.Enabled() }

// SyncComparison replaces the project's COMPETES_WITH edges with the given result.
func (g *CompetitionGraph) SyncComparison(ctx context.Context, project *types.Project, exec *types.BatchExecution, result json.RawMessage) error {
	if !g.Enabled() || project == nil {
		return nil
	}
	view, err := analytics.Comparison(result)
	if err != nil {
		return fmt.Errorf("decode comparison: %w", err)
	}
	if view == nil {
		return nil
	}
	execID := uuid.Nil
	if exec != nil {
		execID = exec.ID
	}
	edges := EdgesFromComparison(project, view, execID)
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{
			"competitor": e.Competitor,
			"wins":       e.Wins,
			"losses":     e.Losses,
			"ties":       e.Ties,
			"win_rate":   e.WinRate,
		})
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	session := g.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	if res, err := session.Run(ctx, `CREATE CONSTRAINT brand_project_unique IF NOT EXISTS FOR (b:Brand) REQUIRE b.project_id IS UNIQUE`, nil); err != nil {
		g.log.Warn("neo4j schema init failed (continuing)", "error", err)
	} else {
		_, _ = res.Consume(ctx)
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (b:Brand {project_id: $project_id})
SET b.name = $name, b.industry = $industry, b.market = $market, b.synced_at = $synced_at
WITH b
OPTIONAL MATCH (b)-[old:COMPETES_WITH]->(:Competitor)
DELETE old
`, map[string]any{
			"project_id": project.ID.String(),
			"name":       project.Name,
			"industry":   project.Industry,
			"market":     project.Market,
			"synced_at":  now,
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		res, err = tx.Run(ctx, `
MATCH (b:Brand {project_id: $project_id})
UNWIND $edges AS e
MERGE (c:Competitor {project_id: $project_id, name: e.competitor})
MERGE (b)-[r:COMPETES_WITH]->(c)
SET r.wins = e.wins, r.losses = e.losses, r.ties = e.ties, r.win_rate = e.win_rate,
    r.batch_execution_id = $exec_id, r.synced_at = $synced_at
`, map[string]any{
			"project_id": project.ID.String(),
			"edges":      rows,
			"exec_id":    execID.String(),
			"synced_at":  now,
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("sync competition graph: %w", err)
	}
	return nil
}

// Edges reads the stored edges for a project, sorted by competitor name.
func (g *CompetitionGraph) Edges(ctx context.Context, project *types.Project) ([]CompetitionEdge, error) {
	if !g.Enabled() || project == nil {
		return nil, nil
	}
	session := g.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (b:Brand {project_id: $project_id})-[r:COMPETES_WITH]->(c:Competitor)
RETURN c.name AS competitor, r.wins AS wins, r.losses AS losses, r.ties AS ties,
       r.win_rate AS win_rate, r.batch_execution_id AS exec_id
ORDER BY competitor
`, map[string]any{"project_id": project.ID.String()})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		edges := make([]CompetitionEdge, 0, len(records))
		for _, rec := range records {
			m := rec.AsMap()
			edges = append(edges, CompetitionEdge{
				Brand:            project.Name,
				Competitor:       asString(m["competitor"]),
				Wins:             asInt(m["wins"]),
				Losses:           asInt(m["losses"]),
				Ties:             asInt(m["ties"]),
				WinRate:          asFloat(m["win_rate"]),
				BatchExecutionID: asString(m["exec_id"]),
			})
		}
		return edges, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read competition graph: %w", err)
	}
	edges, _ := out.([]CompetitionEdge)
	return edges, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
