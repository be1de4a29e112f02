package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryPaths(t *testing.T) {
	commands := Registry()
	cases := []struct {
		key    string
		params Params
		method string
		path   string
	}{
		{"contest list", Params{}, "GET", "/api/contests"},
		{"contest get", Params{"id": "2"}, "GET", "/api/contest/2"},
		{"contest leaderboard", Params{"id": "3"}, "GET", "/api/contest/3/leaderboard"},
		{"problem test-cases", Params{"id": "1"}, "GET", "/api/problem/1/test-cases"},
		{"submit status", Params{"id": "abc 1"}, "GET", "/api/submissions/abc%201"},
		{"submit review", Params{"submission_id": "9"}, "POST", "/api/submissions/9/review"},
		{"submit list", Params{"userid": "4"}, "GET", "/api/submissions?userId=4"},
	}
	for _, tc := range cases {
		cmd, ok := commands[tc.key]
		if !ok {
			t.Fatalf("missing command %q", tc.key)
		}
		req, err := BuildRequest(cmd, tc.params)
		if err != nil {
			t.Fatalf("%s: build failed: %v", tc.key, err)
		}
		if req.Method != tc.method || req.Path != tc.path || req.Body != nil {
			t.Fatalf("%s: unexpected request %+v", tc.key, req)
		}
	}
}

func TestBuildJoinPayload(t *testing.T) {
	req, err := BuildRequest(Registry()["contest join"], Params{"id": "1", "user": "7"})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if req.Path != "/api/contest/1/join" || string(req.Body) != `{"userId":7}` {
		t.Fatalf("unexpected request %s %s", req.Path, req.Body)
	}
	if _, err := BuildRequest(Registry()["contest join"], Params{"id": "x", "user_id": "7"}); err == nil {
		t.Fatalf("expected invalid id error")
	}
	if _, err := BuildRequest(Registry()["contest get"], Params{}); err == nil {
		t.Fatalf("expected missing id error")
	}
}

func TestBuildSubmitPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Main.java")
	if err := os.WriteFile(path, []byte("class Main {}"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	params := Params{"problem": "2", "contest": "1", "user_id": "5", "lang": "python", "file": path, "code": "_file_", "watch": "true"}
	req, err := BuildRequest(Registry()["submit create"], params)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["problemId"] != float64(2) || body["contestId"] != float64(1) || body["userId"] != float64(5) {
		t.Fatalf("unexpected ids %v", body)
	}
	if body["code"] != "class Main {}" || body["language"] != "PYTHON" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["watch"]; ok {
		t.Fatalf("watch must not be sent")
	}
	if !params.Bool("watch") {
		t.Fatalf("expected watch flag")
	}

	if _, err := BuildRequest(Registry()["submit create"], Params{"problem_id": "1", "contest_id": "1", "user_id": "1"}); err == nil {
		t.Fatalf("expected missing code error")
	}
}

func TestKeysSorted(t *testing.T) {
	keys := Keys(Registry())
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}
