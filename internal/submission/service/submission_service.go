package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"shodh/internal/backend"
	"shodh/internal/model"
	appErr "shodh/pkg/errors"
	"shodh/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultMaxCodeBytes = 64 << 10
	placeholderOutput   = "All test cases passed!"
)

// Backend is the judging backend as seen by the submission endpoints.
type Backend interface {
	CreateSubmission(ctx context.Context, req model.SubmitRequest) (model.Submission, error)
	FetchSubmission(ctx context.Context, id model.ID) (model.Submission, error)
	ReviewSubmission(ctx context.Context, id model.ID) (json.RawMessage, error)
}

// Publisher receives every record returned to a client.
type Publisher interface {
	Publish(ctx context.Context, sub model.Submission) error
}

// Config holds submission service dependencies and settings.
type Config struct {
	Backend      Backend
	Publisher    Publisher
	Fallback     backend.FallbackMode
	MaxCodeBytes int
	Timeout      time.Duration

	// Now and Intn are replaced in tests.
	Now  func() time.Time
	Intn func(n int) int
}

// SubmissionService forwards submission traffic to the backend.
type SubmissionService struct {
	backend      Backend
	publisher    Publisher
	fallback     backend.FallbackMode
	maxCodeBytes int
	timeout      time.Duration
	now          func() time.Time
	intn         func(n int) int
}

// NewSubmissionService creates a new submission service.
func NewSubmissionService(cfg Config) (*SubmissionService, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Fallback == "" {
		cfg.Fallback = backend.FallbackMock
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Intn == nil {
		cfg.Intn = rand.IntN
	}
	return &SubmissionService{
		backend:      cfg.Backend,
		publisher:    cfg.Publisher,
		fallback:     cfg.Fallback,
		maxCodeBytes: cfg.MaxCodeBytes,
		timeout:      cfg.Timeout,
		now:          cfg.Now,
		intn:         cfg.Intn,
	}, nil
}

// Submit validates the request and forwards it to the backend.
func (s *SubmissionService) Submit(ctx context.Context, req model.SubmitRequest) (model.Submission, error) {
	req, err := s.validate(req)
	if err != nil {
		return model.Submission{}, err
	}

	ctxBackend := withTimeout(ctx, s.timeout)
	defer ctxBackend.cancel()
	sub, err := s.backend.CreateSubmission(ctxBackend.ctx, req)
	if err != nil {
		if !s.shouldFallback(ctx, "submit", err) {
			return model.Submission{}, err
		}
		sub = s.placeholder(model.ID(strconv.Itoa(s.intn(10000))))
		sub.UserID = req.UserID
		sub.ProblemID = req.ProblemID
		sub.ContestID = req.ContestID
		sub.Code = req.Code
		sub.Language = req.Language
		submittedAt := s.now().UTC()
		sub.SubmittedAt = &submittedAt
	}
	s.publish(ctx, sub)
	return sub, nil
}

// Get returns the current backend record of a submission.
func (s *SubmissionService) Get(ctx context.Context, id model.ID) (model.Submission, error) {
	if strings.TrimSpace(id.String()) == "" {
		return model.Submission{}, appErr.ValidationError("id", "required")
	}

	ctxBackend := withTimeout(ctx, s.timeout)
	defer ctxBackend.cancel()
	sub, err := s.backend.FetchSubmission(ctxBackend.ctx, id)
	if err != nil {
		if !s.shouldFallback(ctx, "get", err, zap.String("submission_id", id.String())) {
			return model.Submission{}, err
		}
		sub = s.placeholder(id)
	}
	s.publish(ctx, sub)
	return sub, nil
}

// Review requests a code review of a submission. Reviews have no placeholder,
// so backend failures always reach the caller.
func (s *SubmissionService) Review(ctx context.Context, id model.ID) (json.RawMessage, error) {
	if strings.TrimSpace(id.String()) == "" {
		return nil, appErr.ValidationError("id", "required")
	}

	ctxBackend := withTimeout(ctx, s.timeout)
	defer ctxBackend.cancel()
	raw, err := s.backend.ReviewSubmission(ctxBackend.ctx, id)
	if err != nil {
		logger.Warn(ctx, "code review failed", zap.String("submission_id", id.String()), zap.Error(err))
		return nil, err
	}
	return raw, nil
}

// ListByUser returns the demo submission history of a user.
func (s *SubmissionService) ListByUser(_ context.Context, userID int64) []model.Submission {
	if userID <= 0 {
		userID = 1
	}
	now := s.now().UTC()
	entry := func(id string, status model.Status, execMs, memMB int64, age time.Duration) model.Submission {
		at := now.Add(-age)
		return model.Submission{
			ID:            model.ID(id),
			ProblemID:     1,
			UserID:        userID,
			Code:          "public class Solution { ... }",
			Language:      model.LanguageJava,
			Status:        status,
			Verdict:       model.StringPtr(string(status)),
			ExecutionTime: model.Int64Ptr(execMs),
			MemoryUsed:    model.Int64Ptr(memMB),
			SubmittedAt:   &at,
		}
	}
	return []model.Submission{
		entry("1", model.StatusAccepted, 245, 12, time.Hour),
		entry("2", model.StatusWrongAnswer, 198, 11, 2*time.Hour),
	}
}

func (s *SubmissionService) validate(req model.SubmitRequest) (model.SubmitRequest, error) {
	if req.UserID <= 0 {
		return req, appErr.ValidationError("userId", "required")
	}
	if req.ProblemID <= 0 {
		return req, appErr.ValidationError("problemId", "required")
	}
	if req.ContestID <= 0 {
		return req, appErr.ValidationError("contestId", "required")
	}
	if strings.TrimSpace(req.Code) == "" {
		return req, appErr.ValidationError("code", "required")
	}
	if len(req.Code) > s.maxCodeBytes {
		return req, appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	lang, ok := model.ParseLanguage(string(req.Language))
	if !ok {
		return req, appErr.New(appErr.LanguageNotSupported).
			WithMessagef("language %q is not supported", req.Language).
			WithDetail("language", string(req.Language))
	}
	req.Language = lang
	return req, nil
}

// shouldFallback reports whether err is replaced by a placeholder. Backend
// responses that carry a JSON body are always passed through.
func (s *SubmissionService) shouldFallback(ctx context.Context, op string, err error, fields ...zap.Field) bool {
	if _, _, ok := backend.Upstream(err); ok {
		return false
	}
	fields = append(fields, zap.String("op", op), zap.Error(err))
	if s.fallback != backend.FallbackMock {
		logger.Warn(ctx, "backend call failed", fields...)
		return false
	}
	logger.Warn(ctx, "backend call failed, answering with placeholder", fields...)
	return true
}

func (s *SubmissionService) placeholder(id model.ID) model.Submission {
	return model.Submission{
		ID:            id,
		Status:        model.StatusAccepted,
		Verdict:       model.StringPtr(string(model.StatusAccepted)),
		ExecutionTime: model.Int64Ptr(int64(s.intn(100) + 10)),
		MemoryUsed:    model.Int64Ptr(int64(s.intn(50) + 10)),
		Output:        model.StringPtr(placeholderOutput),
	}
}

func (s *SubmissionService) publish(ctx context.Context, sub model.Submission) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, sub); err != nil {
		logger.Warn(ctx, "publish submission update failed",
			zap.String("submission_id", sub.ID.String()),
			zap.Error(err))
	}
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
