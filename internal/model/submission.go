// Package model defines the records exchanged between the front-end tier,
// the judging backend and the submission watcher.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusJudging           Status = "JUDGING"
	StatusAccepted          Status = "ACCEPTED"
	StatusWrongAnswer       Status = "WRONG_ANSWER"
	StatusRuntimeError      Status = "RUNTIME_ERROR"
	StatusTimeLimitExceeded Status = "TIME_LIMIT_EXCEEDED"
	StatusCompilationError  Status = "COMPILATION_ERROR"
)

// IsTerminal reports whether no further transition can follow s.
// Only PENDING and JUDGING keep a submission open; anything else,
// unrecognized values included, is terminal.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPending, StatusJudging:
		return false
	default:
		return true
	}
}

// Known reports whether s is part of the documented state set.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusJudging, StatusAccepted, StatusWrongAnswer,
		StatusRuntimeError, StatusTimeLimitExceeded, StatusCompilationError:
		return true
	}
	return false
}

// Language is a supported submission language.
type Language string

const (
	LanguageJava   Language = "JAVA"
	LanguagePython Language = "PYTHON"
	LanguageCPP    Language = "CPP"
)

// DefaultLanguage is used when a request omits the language.
const DefaultLanguage = LanguageJava

// ParseLanguage normalizes a language name. Empty input maps to DefaultLanguage.
func ParseLanguage(raw string) (Language, bool) {
	switch Language(strings.ToUpper(strings.TrimSpace(raw))) {
	case "":
		return DefaultLanguage, true
	case LanguageJava:
		return LanguageJava, true
	case LanguagePython:
		return LanguagePython, true
	case LanguageCPP, "C++":
		return LanguageCPP, true
	}
	return "", false
}

// ID is an opaque submission identifier. The backend issues numeric ids, so
// the JSON form accepts both numbers and strings and writes digit-only ids back
// as numbers.
type ID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("submission id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes digit-only ids as numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	if id != "" && (len(id) == 1 || id[0] != '0') {
		if _, err := strconv.ParseUint(string(id), 10, 63); err == nil {
			return []byte(id), nil
		}
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// Submission is the judging record for a piece of submitted code.
type Submission struct {
	ID            ID         `json:"id"`
	UserID        int64      `json:"userId,omitempty"`
	ProblemID     int64      `json:"problemId,omitempty"`
	ContestID     int64      `json:"contestId,omitempty"`
	Code          string     `json:"code,omitempty"`
	Language      Language   `json:"language,omitempty"`
	Status        Status     `json:"status"`
	Verdict       *string    `json:"verdict"`
	ExecutionTime *int64     `json:"executionTime"`
	MemoryUsed    *int64     `json:"memoryUsed"`
	Output        *string    `json:"output"`
	Error         *string    `json:"error"`
	SubmittedAt   *time.Time `json:"submittedAt,omitempty"`
	// Revision increases every time the backend changes the record.
	Revision int64 `json:"revision"`
}

// SubmitRequest is the body accepted by the submission endpoints and
// forwarded to the backend.
type SubmitRequest struct {
	UserID    int64    `json:"userId"`
	ProblemID int64    `json:"problemId"`
	ContestID int64    `json:"contestId"`
	Code      string   `json:"code"`
	Language  Language `json:"language"`
}

// IsTerminal reports whether the record reached a final state.
func (s Submission) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Sanitize clears result fields on non-terminal records so a waiting
// submission never carries a verdict or metrics.
func (s *Submission) Sanitize() {
	if s.Status.IsTerminal() {
		return
	}
	s.Verdict = nil
	s.ExecutionTime = nil
	s.MemoryUsed = nil
	s.Output = nil
	s.Error = nil
}

// DecodeSubmission parses a wire record and applies Sanitize.
func DecodeSubmission(raw []byte) (Submission, error) {
	var sub Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return Submission{}, err
	}
	if sub.ID == "" {
		return Submission{}, fmt.Errorf("submission id is missing")
	}
	sub.Sanitize()
	return sub, nil
}

// StringPtr and Int64Ptr build optional fields.
func StringPtr(v string) *string { return &v }

func Int64Ptr(v int64) *int64 { return &v }
