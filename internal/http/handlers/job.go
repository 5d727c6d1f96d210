package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/brandpulse-backend/internal/http/response"
	"github.com/yungbote/brandpulse-backend/internal/pkg/dbctx"
	"github.com/yungbote/brandpulse-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuidParam(c, "id", "job")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	job, err := h.jobs.GetByID(dbctx.New(c.Request.Context()), jobID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, err := uuidParam(c, "id", "job")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	job, err := h.jobs.Cancel(dbctx.New(c.Request.Context()), jobID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
