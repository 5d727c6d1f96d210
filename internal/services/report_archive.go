package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/brandpulse-backend/internal/analytics"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/platform/gcp"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

// ArchivedReport is the document written to object storage per finished execution.
type ArchivedReport struct {
	Project      *types.Project        `json:"project"`
	Execution    *types.BatchExecution `json:"batchExecution"`
	FinalResults []*types.BatchResult  `json:"finalResults"`
	Report       *analytics.Report     `json:"report,omitempty"`
	ArchivedAt   time.Time             `json:"archivedAt"`
}

type ReportArchive struct {
	bucket gcp.ReportBucket
	log    *logger.Logger
}

func NewReportArchive(bucket gcp.ReportBucket, baseLog *logger.Logger) *ReportArchive {
	return &ReportArchive{bucket: bucket, log: baseLog.With("service", "ReportArchive")}
}

func ReportKey(projectID, execID uuid.UUID) string {
	return path.Join("projects", projectID.String(), "batches", execID.String()+".json")
}

func ChartKey(projectID, execID uuid.UUID) string {
	return path.Join("projects", projectID.String(), "batches", execID.String()+"-visibility.png")
}

// Archive uploads the report JSON and, when visibility is present, its chart.
func (a *ReportArchive) Archive(ctx context.Context, exec *types.BatchExecution, project *types.Project, results []*types.BatchResult) error {
	if a == nil || a.bucket == nil || exec == nil || project == nil {
		return nil
	}
	report, err := analytics.BuildReport(ToAnalyticsResults(results))
	if err != nil {
		// keep the raw results even when a view cannot be built
		a.log.Warn("report build failed; archiving raw results", "batch_execution_id", exec.ID, "error", err)
		report = nil
	}
	doc := ArchivedReport{
		Project:      project,
		Execution:    exec,
		FinalResults: results,
		Report:       report,
		ArchivedAt:   time.Now().UTC(),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode archived report: %w", err)
	}
	key := ReportKey(project.ID, exec.ID)
	if err := a.bucket.Upload(ctx, key, "application/json", b); err != nil {
		return fmt.Errorf("upload report: %w", err)
	}

	if report != nil && report.Visibility != nil {
		png, err := VisibilityChart(report.Visibility)
		if err != nil {
			return err
		}
		if err := a.bucket.Upload(ctx, ChartKey(project.ID, exec.ID), "image/png", png); err != nil {
			return fmt.Errorf("upload chart: %w", err)
		}
	}
	a.log.Info("report archived", "batch_execution_id", exec.ID, "key", key)
	return nil
}

// Load returns a previously archived report, or nil when none exists.
func (a *ReportArchive) Load(ctx context.Context, projectID, execID uuid.UUID) (*ArchivedReport, error) {
	if a == nil || a.bucket == nil {
		return nil, nil
	}
	raw, err := a.bucket.Download(ctx, ReportKey(projectID, execID))
	if errors.Is(err, gcp.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc ArchivedReport
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode archived report: %w", err)
	}
	return &doc, nil
}

func ToAnalyticsResults(results []*types.BatchResult) []analytics.Result {
	out := make([]analytics.Result, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		out = append(out, analytics.Result{
			ID:         r.ID.String(),
			ResultType: r.ResultType,
			Result:     json.RawMessage(r.Result),
		})
	}
	return out
}
