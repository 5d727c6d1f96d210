package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/brandpulse-backend/internal/data/repos/testutil"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
)

func newJob(projectID uuid.UUID, jobType, status string, createdAt time.Time) *types.JobRun {
	entityID := uuid.New()
	return &types.JobRun{
		ProjectID:  projectID,
		JobType:    jobType,
		EntityType: "batch_execution",
		EntityID:   &entityID,
		Status:     status,
		Stage:      status,
		Payload:    datatypes.JSON([]byte("{}")),
		Result:     datatypes.JSON([]byte("{}")),
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func TestJobRunRepoClaimOrder(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	projectID := uuid.New()

	queued := newJob(projectID, "batch_process", "queued", now.Add(-3*time.Hour))
	failed := newJob(projectID, "batch_process", "failed", now.Add(-2*time.Hour))
	failed.LastErrorAt = ptrTime(now.Add(-2 * time.Hour))
	staleRunning := newJob(projectID, "batch_process", "running", now.Add(-1*time.Hour))
	staleRunning.HeartbeatAt = ptrTime(now.Add(-10 * time.Hour))
	succeeded := newJob(projectID, "batch_process", "succeeded", now.Add(-4*time.Hour))

	created, err := repo.Create(dbc, []*types.JobRun{queued, failed, staleRunning, succeeded})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 4 || queued.ID == uuid.Nil {
		t.Fatalf("Create: expected ids assigned, got %d rows", len(created))
	}

	for i, want := range []uuid.UUID{queued.ID, failed.ID, staleRunning.ID} {
		claim, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour)
		if err != nil {
			t.Fatalf("ClaimNextRunnable #%d: %v", i+1, err)
		}
		if claim == nil || claim.ID != want {
			t.Fatalf("ClaimNextRunnable #%d: expected %v got %v", i+1, want, claim)
		}
		if claim.Status != "running" || claim.Attempts != 1 {
			t.Fatalf("ClaimNextRunnable #%d: claimed row not marked running: %+v", i+1, claim)
		}
	}

	claim, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable drain: %v", err)
	}
	if claim != nil {
		t.Fatalf("expected nothing runnable, got %v", claim.ID)
	}

	stored, err := repo.GetByID(dbc, queued.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: %v %v", stored, err)
	}
	if stored.Status != "running" || stored.Attempts != 1 {
		t.Fatalf("GetByID: unexpected row %+v", stored)
	}
}

func TestJobRunRepoFailedRespectsMaxAttempts(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	failed := newJob(uuid.New(), "batch_process", "failed", now.Add(-2*time.Hour))
	failed.Attempts = 1
	failed.LastErrorAt = ptrTime(now.Add(-2 * time.Hour))
	if _, err := repo.Create(dbc, []*types.JobRun{failed}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	claim, err := repo.ClaimNextRunnable(dbc, 1, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claim != nil {
		t.Fatalf("job at max attempts should not be claimed")
	}
}

func TestJobRunRepoUpdatesAndLookups(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	projectID := uuid.New()
	entityID := uuid.New()

	older := newJob(projectID, "batch_process", "queued", now.Add(-5*time.Hour))
	older.EntityID = &entityID
	newer := newJob(projectID, "batch_process", "queued", now.Add(-4*time.Hour))
	newer.EntityID = &entityID
	if _, err := repo.Create(dbc, []*types.JobRun{older, newer}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	latest, err := repo.GetLatestByEntity(dbc, "batch_execution", entityID, "batch_process")
	if err != nil {
		t.Fatalf("GetLatestByEntity: %v", err)
	}
	if latest == nil || latest.ID != newer.ID {
		t.Fatalf("GetLatestByEntity: expected %v got %v", newer.ID, latest)
	}

	has, err := repo.HasRunnableForEntity(dbc, "batch_execution", entityID, "batch_process")
	if err != nil || !has {
		t.Fatalf("HasRunnableForEntity: has=%v err=%v", has, err)
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, older.ID, []string{"canceled"}, map[string]interface{}{"status": "canceled"})
	if err != nil || !ok {
		t.Fatalf("cancel older: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateFieldsUnlessStatus(dbc, older.ID, []string{"canceled"}, map[string]interface{}{"status": "running"})
	if err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	if ok {
		t.Fatalf("canceled job must not be overwritten")
	}

	if err := repo.UpdateFields(dbc, newer.ID, map[string]interface{}{"status": "running", "stage": "fanout"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if err := repo.Heartbeat(dbc, newer.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	counts, err := repo.CountByStatus(dbc)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts["canceled"] != 1 || counts["running"] != 1 {
		t.Fatalf("CountByStatus: unexpected %v", counts)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
