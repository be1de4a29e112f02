// Package backend is the HTTP client for the judging backend. Every call
// classifies failures into transport, non-success status and malformed body.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shodh/internal/model"
	appErr "shodh/pkg/errors"
	"shodh/pkg/utils/contextkey"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 4 << 20
)

// Config holds backend endpoint settings.
type Config struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client calls the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return NewWithHTTPClient(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout})
}

// NewWithHTTPClient creates a client using hc.
func NewWithHTTPClient(baseURL string, hc *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, appErr.ValidationError("backend.baseUrl", "required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "invalid backend url %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, http: hc}, nil
}

// BaseURL returns the configured base url without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// StatusError is the cause of a BackendStatusError. Body is the raw upstream payload.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded with status %d", e.Status)
}

// Upstream returns the upstream status and JSON body when err is a
// non-success response that carried a JSON payload.
func Upstream(err error) (int, []byte, bool) {
	var se *StatusError
	if !errors.As(err, &se) {
		return 0, nil, false
	}
	if len(se.Body) == 0 || !json.Valid(se.Body) {
		return se.Status, nil, false
	}
	return se.Status, se.Body, true
}

// Response is a raw backend response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Do sends a request and returns the raw response. Only transport failures
// are errors here.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return Response{}, appErr.Wrapf(err, appErr.InvalidParams, "encode request body failed")
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return Response{}, appErr.Wrapf(err, appErr.InternalServerError, "build request failed")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if traceID, ok := ctx.Value(contextkey.TraceID).(string); ok && traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, appErr.Wrapf(err, appErr.BackendUnavailable, "%s %s failed", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{}, appErr.Wrapf(err, appErr.BackendUnavailable, "read %s %s response failed", method, path)
	}
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// DoJSON sends a request and decodes a 2xx JSON body into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return appErr.Wrapf(&StatusError{Status: resp.StatusCode, Body: resp.Body},
			appErr.BackendStatusError, "%s %s returned status %d", method, path, resp.StatusCode).
			WithStatus(resp.StatusCode).
			WithDetail("upstream_status", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return appErr.Wrapf(err, appErr.BackendMalformedResponse, "%s %s returned malformed body", method, path)
	}
	return nil
}

// CreateSubmission posts a submission request.
func (c *Client) CreateSubmission(ctx context.Context, req model.SubmitRequest) (model.Submission, error) {
	var raw json.RawMessage
	if err := c.DoJSON(ctx, http.MethodPost, "/api/submissions", req, &raw); err != nil {
		return model.Submission{}, err
	}
	return decodeSubmission(raw, "POST /api/submissions")
}

// FetchSubmission loads a submission record.
func (c *Client) FetchSubmission(ctx context.Context, id model.ID) (model.Submission, error) {
	path := "/api/submissions/" + url.PathEscape(id.String())
	var raw json.RawMessage
	if err := c.DoJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return model.Submission{}, err
	}
	return decodeSubmission(raw, "GET "+path)
}

// Leaderboard loads a contest leaderboard in backend order.
func (c *Client) Leaderboard(ctx context.Context, contestID int64) ([]model.LeaderboardEntry, error) {
	var entries []model.LeaderboardEntry
	path := fmt.Sprintf("/api/problems/contest/%d/leaderboard", contestID)
	if err := c.DoJSON(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	return entries, nil
}

// TestCases loads the raw test case payload of a problem.
func (c *Client) TestCases(ctx context.Context, problemID int64) (json.RawMessage, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/api/problems/%d/test-cases", problemID)
	if err := c.DoJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ReviewSubmission requests the code review of a submission and returns the
// raw review payload.
func (c *Client) ReviewSubmission(ctx context.Context, id model.ID) (json.RawMessage, error) {
	var raw json.RawMessage
	path := "/api/code-mentor/review/" + url.PathEscape(id.String())
	if err := c.DoJSON(ctx, http.MethodPost, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeSubmission(raw []byte, op string) (model.Submission, error) {
	sub, err := model.DecodeSubmission(raw)
	if err != nil {
		return model.Submission{}, appErr.Wrapf(err, appErr.BackendMalformedResponse, "%s returned malformed submission", op)
	}
	return sub, nil
}
