package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default catalog failed: %v", err)
	}
	if got := len(c.Contests()); got != 3 {
		t.Fatalf("expected 3 contests, got %d", got)
	}
	contest, ok := c.Contest(3)
	if !ok || contest.Status != "COMPLETED" || contest.TotalParticipants != 567 {
		t.Fatalf("unexpected contest 3: %+v", contest)
	}
	if _, ok := c.Contest(99); ok {
		t.Fatalf("expected unknown contest to be missing")
	}

	problems := c.ContestProblems(1)
	if len(problems) != 3 || problems[0].Title != "Two Sum" {
		t.Fatalf("unexpected contest problems %+v", problems)
	}
	if problems[0].Constraints != "" {
		t.Fatalf("listing must use the short problem form")
	}
	if got := c.ContestProblems(3); len(got) != 0 || got == nil {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}

	p, ok := c.Problem(5)
	if !ok || p.MemoryLimit != 512 || p.Constraints == "" {
		t.Fatalf("unexpected problem 5: %+v", p)
	}

	board := c.Leaderboard(3)
	if len(board) != 4 || board[0].Username != "frank" || board[3].TotalScore != 360 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
	board[0].Username = "mutated"
	if c.Leaderboard(3)[0].Username != "frank" {
		t.Fatalf("leaderboard must be returned as a copy")
	}
}

func TestParseRejectsBadFixtures(t *testing.T) {
	cases := map[string]string{
		"malformed":     "contests: [",
		"dup contest":   "contests:\n  - id: 1\n  - id: 1\n",
		"dup problem":   "problems:\n  - id: 1\n  - id: 1\n",
		"dangling link": "problems:\n  - id: 1\ncontestProblems:\n  1: [2]\n",
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	data := "contests:\n  - id: 7\n    title: Local\n    status: UPCOMING\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write fixtures failed: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if contest, ok := c.Contest(7); !ok || contest.Title != "Local" {
		t.Fatalf("unexpected contest %+v", contest)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
