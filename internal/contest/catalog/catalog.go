// Package catalog serves the read-only contest and problem fixtures.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"shodh/internal/model"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

type fixtures struct {
	Contests        []model.Contest                    `yaml:"contests"`
	Problems        []model.Problem                    `yaml:"problems"`
	ContestProblems map[int64][]int64                  `yaml:"contestProblems"`
	Leaderboards    map[int64][]model.LeaderboardEntry `yaml:"leaderboards"`
}

// Catalog is an immutable in-memory catalog.
type Catalog struct {
	contests        []model.Contest
	contestByID     map[int64]model.Contest
	problemByID     map[int64]model.Problem
	contestProblems map[int64][]int64
	leaderboards    map[int64][]model.LeaderboardEntry
}

// Default returns the catalog built from the embedded fixtures.
func Default() (*Catalog, error) {
	return Parse(defaultFixtures)
}

// Load reads fixtures from path. An empty path selects the embedded fixtures.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures %s failed: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML fixtures.
func Parse(data []byte) (*Catalog, error) {
	var f fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures failed: %w", err)
	}

	c := &Catalog{
		contests:        f.Contests,
		contestByID:     make(map[int64]model.Contest, len(f.Contests)),
		problemByID:     make(map[int64]model.Problem, len(f.Problems)),
		contestProblems: f.ContestProblems,
		leaderboards:    f.Leaderboards,
	}
	for _, contest := range f.Contests {
		if _, dup := c.contestByID[contest.ID]; dup {
			return nil, fmt.Errorf("duplicate contest id %d", contest.ID)
		}
		c.contestByID[contest.ID] = contest
	}
	for _, p := range f.Problems {
		if _, dup := c.problemByID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate problem id %d", p.ID)
		}
		c.problemByID[p.ID] = p
	}
	for contestID, ids := range f.ContestProblems {
		for _, id := range ids {
			if _, ok := c.problemByID[id]; !ok {
				return nil, fmt.Errorf("contest %d references unknown problem %d", contestID, id)
			}
		}
	}
	return c, nil
}

// Contests returns every contest in fixture order.
func (c *Catalog) Contests() []model.Contest {
	out := make([]model.Contest, len(c.contests))
	copy(out, c.contests)
	return out
}

// Contest looks up a contest by id.
func (c *Catalog) Contest(id int64) (model.Contest, bool) {
	contest, ok := c.contestByID[id]
	return contest, ok
}

// Problem looks up a problem by id.
func (c *Catalog) Problem(id int64) (model.Problem, bool) {
	p, ok := c.problemByID[id]
	return p, ok
}

// ContestProblems returns the short form of a contest's problems. Unknown
// contests have no problems.
func (c *Catalog) ContestProblems(contestID int64) []model.Problem {
	ids := c.contestProblems[contestID]
	out := make([]model.Problem, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.problemByID[id].Summary())
	}
	return out
}

// Leaderboard returns the fixture leaderboard of a contest, empty if none.
func (c *Catalog) Leaderboard(contestID int64) []model.LeaderboardEntry {
	rows := c.leaderboards[contestID]
	out := make([]model.LeaderboardEntry, len(rows))
	copy(out, rows)
	return out
}
