package controller

import (
	"net/http"
	"strconv"
	"strings"

	"shodh/internal/backend"
	"shodh/internal/model"
	"shodh/internal/submission/service"
	"shodh/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	submissionService *service.SubmissionService
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(submissionService *service.SubmissionService) *SubmissionController {
	return &SubmissionController{submissionService: submissionService}
}

// Submit handles code submission.
func (h *SubmissionController) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	sub, err := h.submissionService.Submit(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, sub)
}

// Get handles submission lookup by id.
func (h *SubmissionController) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}

	sub, err := h.submissionService.Get(c.Request.Context(), model.ID(id))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, sub)
}

// Review relays the backend code review of a submission.
func (h *SubmissionController) Review(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}

	raw, err := h.submissionService.Review(c.Request.Context(), model.ID(id))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Raw(c, http.StatusOK, raw)
}

// List handles the submission history of a user.
func (h *SubmissionController) List(c *gin.Context) {
	var userID int64
	if raw := strings.TrimSpace(c.Query("userId")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			response.BadRequest(c, "Invalid userId")
			return
		}
		userID = parsed
	}
	response.Success(c, h.submissionService.ListByUser(c.Request.Context(), userID))
}

// writeError relays backend JSON error bodies unchanged and enveloped errors otherwise.
func writeError(c *gin.Context, err error) {
	if status, body, ok := backend.Upstream(err); ok {
		response.Raw(c, status, body)
		return
	}
	response.Error(c, err)
}
