// Package detect implements pattern detection over phase history: loop
// (oscillation / no-progress / same-error) and file churn. Detection is
// advisory input to the orchestrator, not a hard stop by itself.
package detect

import (
	"fmt"
	"strings"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/history"
)

// Pattern identifies which loop pattern was matched
type Pattern string

const (
	PatternNone       Pattern = ""
	PatternOscillation Pattern = "oscillation"
	PatternNoProgress  Pattern = "no_progress"
	PatternSameError   Pattern = "same_error"
)

// LoopResult describes a detected (or absent) loop pattern
type LoopResult struct {
	Detected bool
	Pattern  Pattern
	Evidence string
}

// DefaultWindow is the number of recent history entries inspected
const DefaultWindow = 6

// LoopDetector flags unproductive agent behavior over recent history
type LoopDetector struct {
	window int
}

// NewLoopDetector creates a detector with the given window size;
// non-positive values fall back to DefaultWindow.
func NewLoopDetector(window int) *LoopDetector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &LoopDetector{window: window}
}

// Window reports how many recent entries the detector inspects
func (d *LoopDetector) Window() int {
	return d.window
}

// Detect runs the three pattern checks in priority order over entries,
// which must be ordered newest first. First match wins. Fewer than 3
// entries never triggers detection.
func (d *LoopDetector) Detect(entries []*history.Entry) LoopResult {
	if len(entries) < 3 {
		return LoopResult{}
	}
	if len(entries) > d.window {
		entries = entries[:d.window]
	}

	if r := detectOscillation(entries); r.Detected {
		return r
	}
	if r := detectNoProgress(entries); r.Detected {
		return r
	}
	return detectSameError(entries)
}

// detectOscillation matches a repeated non-empty file-change fingerprint:
// the same change produced again means the agent is redoing prior work.
func detectOscillation(entries []*history.Entry) LoopResult {
	seen := make(map[string]int, len(entries))
	for _, e := range entries {
		if e.Fingerprint == "" {
			continue
		}
		seen[e.Fingerprint]++
		if seen[e.Fingerprint] >= 2 {
			return LoopResult{
				Detected: true,
				Pattern:  PatternOscillation,
				Evidence: fmt.Sprintf("file-change fingerprint %s produced %d times", e.Fingerprint, seen[e.Fingerprint]),
			}
		}
	}
	return LoopResult{}
}

// detectNoProgress matches three consecutive most-recent failures
func detectNoProgress(entries []*history.Entry) LoopResult {
	phases := make([]string, 0, 3)
	for _, e := range entries[:3] {
		if e.Outcome != history.OutcomeFailure {
			return LoopResult{}
		}
		phases = append(phases, e.Phase.String())
	}
	return LoopResult{
		Detected: true,
		Pattern:  PatternNoProgress,
		Evidence: fmt.Sprintf("last 3 phases all failed: %s", strings.Join(phases, ", ")),
	}
}

// detectSameError matches a task description repeated among failed entries
func detectSameError(entries []*history.Entry) LoopResult {
	failed := make(map[string]int)
	for _, e := range entries {
		if e.Outcome != history.OutcomeFailure {
			continue
		}
		failed[e.TaskDescription]++
		if failed[e.TaskDescription] >= 2 {
			return LoopResult{
				Detected: true,
				Pattern:  PatternSameError,
				Evidence: fmt.Sprintf("task %q failed %d times", e.TaskDescription, failed[e.TaskDescription]),
			}
		}
	}
	return LoopResult{}
}
