package model

// ContestStatus is the schedule state of a contest.
type ContestStatus string

const (
	ContestOngoing   ContestStatus = "ONGOING"
	ContestUpcoming  ContestStatus = "UPCOMING"
	ContestCompleted ContestStatus = "COMPLETED"
)

// Contest is a catalog entry.
type Contest struct {
	ID                int64         `json:"id" yaml:"id"`
	Title             string        `json:"title" yaml:"title"`
	Description       string        `json:"description" yaml:"description"`
	Status            ContestStatus `json:"status" yaml:"status"`
	StartTime         string        `json:"startTime,omitempty" yaml:"startTime"`
	EndTime           string        `json:"endTime,omitempty" yaml:"endTime"`
	TotalProblems     int           `json:"totalProblems" yaml:"totalProblems"`
	TotalParticipants int           `json:"totalParticipants" yaml:"totalParticipants"`
}

// Problem is a problem statement. Contest listings use the short form
// without the format and constraint texts.
type Problem struct {
	ID           int64  `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	Difficulty   string `json:"difficulty" yaml:"difficulty"`
	Description  string `json:"description" yaml:"description"`
	TimeLimit    int    `json:"timeLimit" yaml:"timeLimit"`
	MemoryLimit  int    `json:"memoryLimit" yaml:"memoryLimit"`
	InputFormat  string `json:"inputFormat,omitempty" yaml:"inputFormat"`
	OutputFormat string `json:"outputFormat,omitempty" yaml:"outputFormat"`
	Constraints  string `json:"constraints,omitempty" yaml:"constraints"`
}

// Summary drops the long statement fields.
func (p Problem) Summary() Problem {
	p.InputFormat = ""
	p.OutputFormat = ""
	p.Constraints = ""
	return p
}

// LeaderboardEntry is one row of a contest leaderboard. Rank is assigned by
// the reader from the row position.
type LeaderboardEntry struct {
	UserID         int64  `json:"userId" yaml:"userId"`
	Username       string `json:"username" yaml:"username"`
	TotalScore     int64  `json:"totalScore" yaml:"totalScore"`
	ProblemsSolved int    `json:"problemsSolved" yaml:"problemsSolved"`
	Rank           int    `json:"rank,omitempty" yaml:"-"`
}

// TestCase is a sample case of a problem.
type TestCase struct {
	ID             int64  `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden"`
}
