package history

import (
	"time"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
	"github.com/oklog/ulid/v2"
)

// Outcome is the result of one executed phase
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry records one executed phase. Entries are append-only: loop and
// churn detection depend on this log never being rewritten.
type Entry struct {
	ID              string
	ProjectID       project.ID
	CycleNumber     int
	Phase           execution.Phase
	TaskDescription string
	Fingerprint     string // hash of resulting file changes; empty if none
	Outcome         Outcome
	ReviewScore     *int
	Duration        time.Duration
	CreatedAt       time.Time
}

// NewEntry creates a history entry for a just-executed phase
func NewEntry(projectID project.ID, cycle int, phase execution.Phase, task string, outcome Outcome) *Entry {
	return &Entry{
		ID:              ulid.Make().String(),
		ProjectID:       projectID,
		CycleNumber:     cycle,
		Phase:           phase,
		TaskDescription: task,
		Outcome:         outcome,
		CreatedAt:       time.Now().UTC(),
	}
}

// WithFingerprint attaches a file-change fingerprint
func (e *Entry) WithFingerprint(fp string) *Entry {
	e.Fingerprint = fp
	return e
}

// WithScore attaches a review score
func (e *Entry) WithScore(score int) *Entry {
	e.ReviewScore = &score
	return e
}

// WithDuration attaches the phase wall-clock duration
func (e *Entry) WithDuration(d time.Duration) *Entry {
	e.Duration = d
	return e
}

// FileTouch records one file-modifying tool invocation, consumed by the
// churn detector.
type FileTouch struct {
	ProjectID   project.ID
	CycleNumber int
	Path        string
	CreatedAt   time.Time
}
