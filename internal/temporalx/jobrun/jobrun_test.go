package jobrun

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
	"gorm.io/datatypes"

	"github.com/yungbote/brandpulse-backend/internal/data/repos/jobs"
	"github.com/yungbote/brandpulse-backend/internal/data/repos/testutil"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	jobrt "github.com/yungbote/brandpulse-backend/internal/jobs/runtime"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
)

type succeedHandler struct{}

func (succeedHandler) Type() string { return "batch_process" }
func (succeedHandler) Run(jc *jobrt.Context) error {
	jc.Progress("spontaneous", 50, "half")
	return nil
}

func TestTickRunsHandlerAndCompletes(t *testing.T) {
	db := testutil.DB(t)
	repo := jobs.NewJobRunRepo(db, testutil.Logger(t))
	reg := jobrt.NewRegistry()
	require.NoError(t, reg.Register(succeedHandler{}))

	now := time.Now().UTC()
	job := &types.JobRun{ProjectID: uuid.New(), JobType: "batch_process", Status: "queued", Stage: "queued", Payload: datatypes.JSON([]byte(`{}`)), CreatedAt: now, UpdatedAt: now}
	_, err := repo.Create(dbctx.New(context.Background()), []*types.JobRun{job})
	require.NoError(t, err)

	acts := &Activities{Log: testutil.Logger(t), DB: db, Jobs: repo, Registry: reg, Heartbeat: func(context.Context) {}}
	res, err := acts.Tick(context.Background(), job.ID.String())
	require.NoError(t, err)
	require.Equal(t, "succeeded", res.Status)

	again, err := acts.Tick(context.Background(), job.ID.String())
	require.NoError(t, err)
	require.Equal(t, "succeeded", again.Status)

	row, err := repo.GetByID(dbctx.New(context.Background()), job.ID)
	require.NoError(t, err)
	require.Equal(t, 1, row.Attempts, "terminal rows must not be re-run")
}

func TestTickRejectsBadID(t *testing.T) {
	db := testutil.DB(t)
	acts := &Activities{Log: testutil.Logger(t), DB: db, Jobs: jobs.NewJobRunRepo(db, testutil.Logger(t)), Registry: jobrt.NewRegistry()}
	_, err := acts.Tick(context.Background(), "nope")
	require.Error(t, err)
}

func TestWorkflowPollsUntilTerminal(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	acts := &Activities{}
	env.RegisterActivityWithOptions(acts.Tick, activity.RegisterOptions{Name: ActivityTick})

	env.OnActivity(ActivityTick, mock.Anything, mock.Anything).Return(TickResult{Status: "running"}, nil).Once()
	env.OnActivity(ActivityTick, mock.Anything, mock.Anything).Return(TickResult{Status: "succeeded"}, nil).Once()

	env.ExecuteWorkflow(WorkflowName)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}

func TestWorkflowFailsWithJob(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	acts := &Activities{}
	env.RegisterActivityWithOptions(acts.Tick, activity.RegisterOptions{Name: ActivityTick})
	env.OnActivity(ActivityTick, mock.Anything, mock.Anything).Return(TickResult{Status: "failed", Stage: "analyze"}, nil)

	env.ExecuteWorkflow(WorkflowName)
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
