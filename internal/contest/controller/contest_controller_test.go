package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shodh/internal/backend"
	"shodh/internal/contest/catalog"
	"shodh/internal/contest/joinstore"
	"shodh/internal/contest/service"
	"shodh/internal/model"
	appErr "shodh/pkg/errors"

	"github.com/gin-gonic/gin"
)

type stubBackend struct {
	board []model.LeaderboardEntry
	err   error
	cases json.RawMessage
}

func (s *stubBackend) Leaderboard(context.Context, int64) ([]model.LeaderboardEntry, error) {
	return s.board, s.err
}

func (s *stubBackend) TestCases(context.Context, int64) (json.RawMessage, error) {
	return s.cases, s.err
}

func newRouter(t *testing.T, b service.Backend) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	svc, err := service.NewContestService(service.Config{
		Catalog: cat,
		Joins:   joinstore.NewMemoryStore(),
		Backend: b,
	})
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	h := NewContestController(svc)
	r := gin.New()
	r.GET("/api/contests", h.List)
	r.GET("/api/contest/:id", h.Get)
	r.GET("/api/contest/:id/problems", h.Problems)
	r.POST("/api/contest/:id/join", h.Join)
	r.POST("/api/contest/:id/check-joined", h.CheckJoined)
	r.GET("/api/contest/:id/leaderboard", h.Leaderboard)
	r.GET("/api/problem/:id", h.Problem)
	r.GET("/api/problem/:id/test-cases", h.TestCases)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q failed: %v", w.Body.String(), err)
	}
}

func TestCatalogRoutes(t *testing.T) {
	r := newRouter(t, &stubBackend{})

	cases := []struct {
		path   string
		status int
	}{
		{"/api/contests", http.StatusOK},
		{"/api/contest/1", http.StatusOK},
		{"/api/contest/9", http.StatusNotFound},
		{"/api/contest/abc", http.StatusBadRequest},
		{"/api/contest/1/problems", http.StatusOK},
		{"/api/contest/9/problems", http.StatusOK},
		{"/api/problem/3", http.StatusOK},
		{"/api/problem/30", http.StatusNotFound},
	}
	for _, tc := range cases {
		if w := do(r, http.MethodGet, tc.path, ""); w.Code != tc.status {
			t.Fatalf("GET %s: expected %d, got %d", tc.path, tc.status, w.Code)
		}
	}

	var notFound struct {
		Error string `json:"error"`
	}
	decode(t, do(r, http.MethodGet, "/api/contest/9", ""), &notFound)
	if notFound.Error != "Contest not found" {
		t.Fatalf("unexpected error body %+v", notFound)
	}

	var problems []model.Problem
	decode(t, do(r, http.MethodGet, "/api/contest/9/problems", ""), &problems)
	if problems == nil || len(problems) != 0 {
		t.Fatalf("expected empty problem list, got %+v", problems)
	}
}

func TestJoinRoutes(t *testing.T) {
	r := newRouter(t, &stubBackend{})

	var missing struct {
		Error string `json:"error"`
	}
	w := do(r, http.MethodPost, "/api/contest/1/join", `{}`)
	decode(t, w, &missing)
	if w.Code != http.StatusBadRequest || missing.Error != "Missing userId or contestId" {
		t.Fatalf("unexpected missing-id response %d %s", w.Code, w.Body.String())
	}

	var check struct {
		HasJoined bool `json:"hasJoined"`
	}
	decode(t, do(r, http.MethodPost, "/api/contest/1/check-joined", `{"userId":4}`), &check)
	if check.HasJoined {
		t.Fatalf("expected not joined before join")
	}

	for _, body := range []string{`{"userId":4}`, `{"userId":"4"}`} {
		var res service.JoinResult
		w := do(r, http.MethodPost, "/api/contest/1/join", body)
		decode(t, w, &res)
		if w.Code != http.StatusOK || !res.Success || !res.HasJoined || res.Message != "Successfully joined contest" {
			t.Fatalf("unexpected join response %d %s", w.Code, w.Body.String())
		}
	}

	decode(t, do(r, http.MethodPost, "/api/contest/1/check-joined", `{"userId":4}`), &check)
	if !check.HasJoined {
		t.Fatalf("expected joined after join")
	}
	decode(t, do(r, http.MethodPost, "/api/contest/2/check-joined", `{"userId":4}`), &check)
	if check.HasJoined {
		t.Fatalf("join must be per contest")
	}

	w = do(r, http.MethodPost, "/api/contest/1/check-joined", `not json`)
	decode(t, w, &check)
	if w.Code != http.StatusOK || check.HasJoined {
		t.Fatalf("unreadable body must read as not joined, got %d %s", w.Code, w.Body.String())
	}
}

func TestLeaderboardRoute(t *testing.T) {
	rows := []model.LeaderboardEntry{{UserID: 1, Username: "b", TotalScore: 1}, {UserID: 2, Username: "a", TotalScore: 9}}
	r := newRouter(t, &stubBackend{board: rows})

	var got []model.LeaderboardEntry
	decode(t, do(r, http.MethodGet, "/api/contest/1/leaderboard", ""), &got)
	if len(got) != 2 || got[0].Username != "b" || got[0].Rank != 1 || got[1].Rank != 2 {
		t.Fatalf("unexpected leaderboard %+v", got)
	}

	fallback := newRouter(t, &stubBackend{err: appErr.New(appErr.BackendUnavailable)})
	decode(t, do(fallback, http.MethodGet, "/api/contest/3/leaderboard", ""), &got)
	if len(got) != 4 || got[0].Username != "frank" || got[3].Rank != 4 {
		t.Fatalf("unexpected fixture leaderboard %+v", got)
	}
}

func TestTestCasesRoute(t *testing.T) {
	r := newRouter(t, &stubBackend{cases: json.RawMessage(`[{"id":1,"input":"1 2","expectedOutput":"3","isHidden":false}]`)})
	w := do(r, http.MethodGet, "/api/problem/1/test-cases", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"expectedOutput":"3"`) {
		t.Fatalf("unexpected test cases %d %s", w.Code, w.Body.String())
	}

	upstream := appErr.Wrap(&backend.StatusError{Status: http.StatusNotFound, Body: []byte(`{"message":"no such problem"}`)},
		appErr.BackendStatusError).WithStatus(http.StatusNotFound)
	r = newRouter(t, &stubBackend{err: upstream})
	w = do(r, http.MethodGet, "/api/problem/1/test-cases", "")
	if w.Code != http.StatusNotFound || w.Body.String() != `{"message":"no such problem"}` {
		t.Fatalf("expected pass-through, got %d %s", w.Code, w.Body.String())
	}

	r = newRouter(t, &stubBackend{err: appErr.New(appErr.BackendUnavailable)})
	if w := do(r, http.MethodGet, "/api/problem/1/test-cases", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without fallback, got %d", w.Code)
	}
}
