package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/execution"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/history"
	"github.com/StatsAiGuy/exeflow/internal/domain/model/project"
)

func entry(phase execution.Phase, task string, outcome history.Outcome, fp string) *history.Entry {
	e := history.NewEntry(project.ID("p1"), 1, phase, task, outcome)
	return e.WithFingerprint(fp)
}

func TestLoopDetector_FewerThanThreeEntries(t *testing.T) {
	d := NewLoopDetector(0)

	r := d.Detect(nil)
	assert.False(t, r.Detected)

	r = d.Detect([]*history.Entry{
		entry(execution.PhaseExecute, "task a", history.OutcomeFailure, "fp1"),
		entry(execution.PhaseExecute, "task a", history.OutcomeFailure, "fp1"),
	})
	assert.False(t, r.Detected, "never detects with fewer than 3 entries, even with repeats")
}

func TestLoopDetector_Oscillation(t *testing.T) {
	d := NewLoopDetector(6)

	r := d.Detect([]*history.Entry{
		entry(execution.PhaseExecute, "add auth", history.OutcomeSuccess, "fp-abc"),
		entry(execution.PhaseReview, "review auth", history.OutcomeSuccess, "fp-xyz"),
		entry(execution.PhaseExecute, "fix auth", history.OutcomeSuccess, "fp-abc"),
	})
	assert.True(t, r.Detected)
	assert.Equal(t, PatternOscillation, r.Pattern)
	assert.Contains(t, r.Evidence, "fp-abc")
}

func TestLoopDetector_IgnoresEmptyFingerprints(t *testing.T) {
	d := NewLoopDetector(6)

	r := d.Detect([]*history.Entry{
		entry(execution.PhaseTest, "run tests", history.OutcomeSuccess, ""),
		entry(execution.PhaseTest, "run tests again", history.OutcomeSuccess, ""),
		entry(execution.PhaseExecute, "add db", history.OutcomeSuccess, "fp-1"),
	})
	assert.False(t, r.Detected, "empty fingerprints never count as oscillation")
}

func TestLoopDetector_NoProgress(t *testing.T) {
	d := NewLoopDetector(6)

	r := d.Detect([]*history.Entry{
		entry(execution.PhaseTest, "run tests", history.OutcomeFailure, ""),
		entry(execution.PhaseExecute, "wire handler", history.OutcomeFailure, "fp-2"),
		entry(execution.PhaseExecute, "add handler", history.OutcomeFailure, "fp-1"),
		entry(execution.PhasePlan, "plan milestone", history.OutcomeSuccess, ""),
	})
	assert.True(t, r.Detected)
	assert.Equal(t, PatternNoProgress, r.Pattern)
	assert.Contains(t, r.Evidence, "test")
	assert.Contains(t, r.Evidence, "execute")
}

func TestLoopDetector_NoProgressRequiresThreeMostRecent(t *testing.T) {
	d := NewLoopDetector(6)

	// Most recent entry succeeded: older failures do not count
	r := d.Detect([]*history.Entry{
		entry(execution.PhaseExecute, "task d", history.OutcomeSuccess, "fp-9"),
		entry(execution.PhaseExecute, "task a", history.OutcomeFailure, ""),
		entry(execution.PhaseExecute, "task b", history.OutcomeFailure, ""),
		entry(execution.PhaseExecute, "task c", history.OutcomeFailure, ""),
	})
	assert.False(t, r.Detected)
}

func TestLoopDetector_SameError(t *testing.T) {
	d := NewLoopDetector(6)

	r := d.Detect([]*history.Entry{
		entry(execution.PhaseExecute, "migrate schema", history.OutcomeFailure, "fp-1"),
		entry(execution.PhaseTest, "run tests", history.OutcomeSuccess, "fp-2"),
		entry(execution.PhaseExecute, "migrate schema", history.OutcomeFailure, "fp-3"),
	})
	assert.True(t, r.Detected)
	assert.Equal(t, PatternSameError, r.Pattern)
	assert.Contains(t, r.Evidence, "migrate schema")
}

func TestLoopDetector_SameErrorIgnoresSuccessfulRepeats(t *testing.T) {
	d := NewLoopDetector(6)

	r := d.Detect([]*history.Entry{
		entry(execution.PhaseTest, "run tests", history.OutcomeSuccess, "fp-1"),
		entry(execution.PhaseExecute, "task x", history.OutcomeSuccess, "fp-2"),
		entry(execution.PhaseTest, "run tests", history.OutcomeSuccess, "fp-3"),
	})
	assert.False(t, r.Detected)
}

func TestLoopDetector_PriorityOrder(t *testing.T) {
	d := NewLoopDetector(6)

	// Both oscillation and no-progress present: oscillation wins
	r := d.Detect([]*history.Entry{
		entry(execution.PhaseExecute, "task a", history.OutcomeFailure, "fp-same"),
		entry(execution.PhaseExecute, "task b", history.OutcomeFailure, "fp-same"),
		entry(execution.PhaseExecute, "task c", history.OutcomeFailure, ""),
	})
	assert.True(t, r.Detected)
	assert.Equal(t, PatternOscillation, r.Pattern)
}

func TestLoopDetector_WindowLimitsInspection(t *testing.T) {
	d := NewLoopDetector(3)

	// The repeated fingerprint sits outside the 3-entry window
	r := d.Detect([]*history.Entry{
		entry(execution.PhaseExecute, "task a", history.OutcomeSuccess, "fp-old"),
		entry(execution.PhaseExecute, "task b", history.OutcomeSuccess, "fp-1"),
		entry(execution.PhaseExecute, "task c", history.OutcomeSuccess, "fp-2"),
		entry(execution.PhaseExecute, "task d", history.OutcomeSuccess, "fp-old"),
	})
	assert.False(t, r.Detected)
}

func TestChurnDetector_ReportsPathsAtThreshold(t *testing.T) {
	d := NewChurnDetector(0)

	touch := func(path string) *history.FileTouch {
		return &history.FileTouch{ProjectID: project.ID("p1"), CycleNumber: 1, Path: path}
	}
	touches := []*history.FileTouch{
		touch("internal/auth/handler.go"),
		touch("internal/auth/handler.go"),
		touch("internal/auth/handler.go"),
		touch("internal/auth/handler.go"),
		touch("internal/db/schema.go"),
		touch("internal/db/schema.go"),
		touch("internal/db/schema.go"),
		touch("README.md"),
	}

	churned := d.Detect(touches)
	assert.Len(t, churned, 2)
	assert.Equal(t, ChurnedFile{Path: "internal/auth/handler.go", Count: 4}, churned[0])
	assert.Equal(t, ChurnedFile{Path: "internal/db/schema.go", Count: 3}, churned[1])
}

func TestChurnDetector_NothingBelowThreshold(t *testing.T) {
	d := NewChurnDetector(3)

	churned := d.Detect([]*history.FileTouch{
		{Path: "a.go"}, {Path: "a.go"}, {Path: "b.go"},
	})
	assert.Empty(t, churned)
}
