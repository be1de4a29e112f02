package controller

import (
	"net/http"
	"strconv"
	"strings"

	"shodh/internal/backend"
	"shodh/internal/contest/service"
	"shodh/internal/model"
	"shodh/pkg/utils/logger"
	"shodh/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContestController handles contest and problem HTTP endpoints.
type ContestController struct {
	contestService *service.ContestService
}

// NewContestController creates a new ContestController.
func NewContestController(contestService *service.ContestService) *ContestController {
	return &ContestController{contestService: contestService}
}

// JoinRequest is the body of join and check-joined. userId may be sent as
// a number or a numeric string.
type JoinRequest struct {
	UserID model.ID `json:"userId"`
}

func (r JoinRequest) userID() int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(r.UserID.String()), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// CheckJoinedResponse is the body returned by check-joined.
type CheckJoinedResponse struct {
	HasJoined bool `json:"hasJoined"`
}

// List handles the contest listing.
func (h *ContestController) List(c *gin.Context) {
	response.Success(c, h.contestService.ListContests(c.Request.Context()))
}

// Get handles contest lookup.
func (h *ContestController) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		response.BadRequest(c, "Invalid contest id")
		return
	}
	contest, err := h.contestService.GetContest(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contest)
}

// Problems handles the problem listing of a contest.
func (h *ContestController) Problems(c *gin.Context) {
	id, _ := pathID(c)
	response.Success(c, h.contestService.ListProblems(c.Request.Context(), id))
}

// Join handles joining a contest.
func (h *ContestController) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	contestID, _ := pathID(c)
	res, err := h.contestService.Join(c.Request.Context(), req.userID(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// CheckJoined handles join state lookup. An unreadable body reads as not joined.
func (h *ContestController) CheckJoined(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn(c.Request.Context(), "check-joined body unreadable", zap.Error(err))
		response.Success(c, CheckJoinedResponse{HasJoined: false})
		return
	}
	contestID, _ := pathID(c)
	joined, err := h.contestService.CheckJoined(c.Request.Context(), req.userID(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, CheckJoinedResponse{HasJoined: joined})
}

// Leaderboard handles the ranked leaderboard of a contest.
func (h *ContestController) Leaderboard(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		response.BadRequest(c, "Invalid contest id")
		return
	}
	rows, err := h.contestService.Leaderboard(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, rows)
}

// Problem handles problem lookup.
func (h *ContestController) Problem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	p, err := h.contestService.GetProblem(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, p)
}

// TestCases relays the backend test cases of a problem.
func (h *ContestController) TestCases(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	raw, err := h.contestService.TestCases(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Raw(c, http.StatusOK, raw)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	if status, body, ok := backend.Upstream(err); ok {
		response.Raw(c, status, body)
		return
	}
	response.Error(c, err)
}
