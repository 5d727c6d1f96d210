package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/brandpulse-backend/internal/http/response"
	"github.com/yungbote/brandpulse-backend/internal/services"
)

type ProjectHandler struct {
	projects services.ProjectService
	prompts  services.PromptSetService
}

func NewProjectHandler(projects services.ProjectService, prompts services.PromptSetService) *ProjectHandler {
	return &ProjectHandler{projects: projects, prompts: prompts}
}

// POST /api/projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req services.ProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.projects.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.Respond(c, http.StatusCreated, gin.H{"project": p})
}

// GET /api/projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	list, err := h.projects.List(c.Request.Context(), intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"projects": list})
}

// GET /api/projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, err := uuidParam(c, "id", "project")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	p, err := h.projects.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p})
}

// PATCH /api/projects/:id
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	id, err := uuidParam(c, "id", "project")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	var req services.ProjectPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.projects.Update(c.Request.Context(), id, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p})
}

// DELETE /api/projects/:id
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	id, err := uuidParam(c, "id", "project")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if err := h.projects.Delete(c.Request.Context(), id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, nil)
}

// PUT /api/projects/:id/prompt-sets/:pipeline
func (h *ProjectHandler) ReplacePromptSet(c *gin.Context) {
	id, err := uuidParam(c, "id", "project")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	var req services.PromptSetInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	set, err := h.prompts.Replace(c.Request.Context(), id, c.Param("pipeline"), req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"promptSet": set})
}

// GET /api/projects/:id/prompt-sets
func (h *ProjectHandler) ListPromptSets(c *gin.Context) {
	id, err := uuidParam(c, "id", "project")
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	sets, err := h.prompts.List(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"promptSets": sets})
}
