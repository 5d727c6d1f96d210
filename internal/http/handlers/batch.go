package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/brandpulse-backend/internal/http/response"
	"github.com/yungbote/brandpulse-backend/internal/services"
)

type BatchHandler struct {
	batches services.BatchService
}

func NewBatchHandler(batches services.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// POST /api/batch/process/:id
// Starting a project that already has a pending or running execution returns
// that execution with alreadyRunning set.
func (h *BatchHandler) StartBatch(c *gin.Context) {
	projectID, err := uuidParam(c, "id", "project")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	var req services.StartBatchInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	res, err := h.batches.Start(c.Request.Context(), projectID, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	body := gin.H{"batchExecutionId": res.BatchExecutionID}
	if res.JobID != nil {
		body["jobId"] = res.JobID
	}
	if res.AlreadyRunning {
		body["alreadyRunning"] = true
		response.RespondOK(c, body)
		return
	}
	response.Respond(c, http.StatusAccepted, body)
}

// GET /api/batch-executions/:id
func (h *BatchHandler) GetBatchExecution(c *gin.Context) {
	id, err := uuidParam(c, "id", "batch_execution")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	view, err := h.batches.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"batchExecution": view})
}

// GET /api/projects/:id/batch-executions
func (h *BatchHandler) ListBatchExecutions(c *gin.Context) {
	projectID, err := uuidParam(c, "id", "project")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	list, err := h.batches.History(c.Request.Context(), projectID, intQuery(c, "limit", 0))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"batchExecutions": list})
}

// POST /api/batch-executions/:id/cancel
func (h *BatchHandler) CancelBatchExecution(c *gin.Context) {
	id, err := uuidParam(c, "id", "batch_execution")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	exec, err := h.batches.Cancel(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"batchExecution": exec})
}

// GET /api/batch-executions/:id/responses
func (h *BatchHandler) ListResponses(c *gin.Context) {
	id, err := uuidParam(c, "id", "batch_execution")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	rows, err := h.batches.Responses(c.Request.Context(), id, c.Query("pipeline"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"responses": rows})
}

// GET /api/batch-executions/:id/report
func (h *BatchHandler) GetReport(c *gin.Context) {
	id, err := uuidParam(c, "id", "batch_execution")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	report, err := h.batches.Report(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": report})
}

// GET /api/batch-executions/:id/chart.png
func (h *BatchHandler) GetChart(c *gin.Context) {
	id, err := uuidParam(c, "id", "batch_execution")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	png, err := h.batches.Chart(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

// GET /api/projects/:id/competition-graph
func (h *BatchHandler) GetCompetitionGraph(c *gin.Context) {
	projectID, err := uuidParam(c, "id", "project")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	g, err := h.batches.CompetitionGraph(c.Request.Context(), projectID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"graph": g})
}
