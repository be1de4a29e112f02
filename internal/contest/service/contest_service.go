package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shodh/internal/backend"
	"shodh/internal/contest/catalog"
	"shodh/internal/contest/joinstore"
	"shodh/internal/leaderboard"
	"shodh/internal/model"
	appErr "shodh/pkg/errors"
	"shodh/pkg/utils/logger"

	"go.uber.org/zap"
)

const joinedMessage = "Successfully joined contest"

// Backend is the judging backend as seen by the contest endpoints.
type Backend interface {
	Leaderboard(ctx context.Context, contestID int64) ([]model.LeaderboardEntry, error)
	TestCases(ctx context.Context, problemID int64) (json.RawMessage, error)
}

// Config holds contest service dependencies and settings.
type Config struct {
	Catalog  *catalog.Catalog
	Joins    joinstore.Store
	Backend  Backend
	Fallback backend.FallbackMode
	Timeout  time.Duration
}

// ContestService serves the contest catalog, join state and leaderboards.
type ContestService struct {
	catalog  *catalog.Catalog
	joins    joinstore.Store
	backend  Backend
	fallback backend.FallbackMode
	timeout  time.Duration
}

// JoinResult is the outcome of a join request.
type JoinResult struct {
	Success   bool   `json:"success"`
	HasJoined bool   `json:"hasJoined"`
	Message   string `json:"message"`
}

// NewContestService creates a new contest service.
func NewContestService(cfg Config) (*ContestService, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Joins == nil {
		return nil, fmt.Errorf("join store is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Fallback == "" {
		cfg.Fallback = backend.FallbackMock
	}
	return &ContestService{
		catalog:  cfg.Catalog,
		joins:    cfg.Joins,
		backend:  cfg.Backend,
		fallback: cfg.Fallback,
		timeout:  cfg.Timeout,
	}, nil
}

// ListContests returns every contest.
func (s *ContestService) ListContests(_ context.Context) []model.Contest {
	return s.catalog.Contests()
}

// GetContest returns a contest by id.
func (s *ContestService) GetContest(_ context.Context, id int64) (model.Contest, error) {
	contest, ok := s.catalog.Contest(id)
	if !ok {
		return model.Contest{}, appErr.New(appErr.ContestNotFound).WithDetail("contestId", id)
	}
	return contest, nil
}

// ListProblems returns the problems of a contest. Unknown contests have none.
func (s *ContestService) ListProblems(_ context.Context, contestID int64) []model.Problem {
	return s.catalog.ContestProblems(contestID)
}

// GetProblem returns a problem by id.
func (s *ContestService) GetProblem(_ context.Context, id int64) (model.Problem, error) {
	p, ok := s.catalog.Problem(id)
	if !ok {
		return model.Problem{}, appErr.New(appErr.ProblemNotFound).WithDetail("problemId", id)
	}
	return p, nil
}

// TestCases returns the backend test case payload of a problem unchanged.
func (s *ContestService) TestCases(ctx context.Context, problemID int64) (json.RawMessage, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problemId", "required")
	}
	ctxBackend := withTimeout(ctx, s.timeout)
	defer ctxBackend.cancel()
	return s.backend.TestCases(ctxBackend.ctx, problemID)
}

// Join records that userID joined contestID. Joining twice is a no-op.
func (s *ContestService) Join(ctx context.Context, userID, contestID int64) (JoinResult, error) {
	if userID <= 0 || contestID <= 0 {
		return JoinResult{}, appErr.New(appErr.InvalidParams).WithMessage("Missing userId or contestId")
	}
	if err := s.joins.Join(ctx, userID, contestID); err != nil {
		if appErr.GetCode(err) == appErr.JoinStateInvalid {
			return JoinResult{}, err
		}
		return JoinResult{}, appErr.Wrapf(err, appErr.RegistrationFailed, "Failed to join contest")
	}
	logger.Info(ctx, "user joined contest", zap.Int64("user_id", userID), zap.Int64("contest_id", contestID))
	return JoinResult{Success: true, HasJoined: true, Message: joinedMessage}, nil
}

// CheckJoined reports whether userID joined contestID. Store failures are
// logged and read as not joined.
func (s *ContestService) CheckJoined(ctx context.Context, userID, contestID int64) (bool, error) {
	if userID <= 0 || contestID <= 0 {
		return false, appErr.New(appErr.InvalidParams).WithMessage("Missing userId or contestId")
	}
	joined, err := s.joins.HasJoined(ctx, userID, contestID)
	if err != nil {
		logger.Warn(ctx, "check join state failed",
			zap.Int64("user_id", userID),
			zap.Int64("contest_id", contestID),
			zap.Error(err))
		return false, nil
	}
	return joined, nil
}

// Leaderboard returns the ranked leaderboard of a contest in backend order.
// Failed backend calls fall back to the fixtures in mock mode.
func (s *ContestService) Leaderboard(ctx context.Context, contestID int64) ([]model.LeaderboardEntry, error) {
	if contestID <= 0 {
		return nil, appErr.ValidationError("contestId", "required")
	}
	ctxBackend := withTimeout(ctx, s.timeout)
	defer ctxBackend.cancel()

	entries, err := s.backend.Leaderboard(ctxBackend.ctx, contestID)
	if err != nil {
		if s.fallback != backend.FallbackMock {
			logger.Warn(ctx, "leaderboard fetch failed", zap.Int64("contest_id", contestID), zap.Error(err))
			return nil, err
		}
		logger.Warn(ctx, "leaderboard fetch failed, using fixtures", zap.Int64("contest_id", contestID), zap.Error(err))
		entries = s.catalog.Leaderboard(contestID)
	}
	return leaderboard.Rank(entries), nil
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
