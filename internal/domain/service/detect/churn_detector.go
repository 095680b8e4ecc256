package detect

import (
	"sort"

	"github.com/StatsAiGuy/exeflow/internal/domain/model/history"
)

// DefaultChurnThreshold is the modification count at which a path is
// considered churning.
const DefaultChurnThreshold = 3

// ChurnedFile reports one path modified beyond the threshold
type ChurnedFile struct {
	Path  string
	Count int
}

// ChurnDetector counts file-path occurrences across file-modifying tool
// invocations. Its output is diagnostic; it never pauses a project on
// its own.
type ChurnDetector struct {
	threshold int
}

// NewChurnDetector creates a detector; non-positive thresholds fall back
// to DefaultChurnThreshold.
func NewChurnDetector(threshold int) *ChurnDetector {
	if threshold <= 0 {
		threshold = DefaultChurnThreshold
	}
	return &ChurnDetector{threshold: threshold}
}

// Detect returns paths touched at least threshold times, most-churned
// first, ties broken by path for stable output.
func (d *ChurnDetector) Detect(touches []*history.FileTouch) []ChurnedFile {
	counts := make(map[string]int, len(touches))
	for _, t := range touches {
		counts[t.Path]++
	}

	var churned []ChurnedFile
	for path, n := range counts {
		if n >= d.threshold {
			churned = append(churned, ChurnedFile{Path: path, Count: n})
		}
	}
	sort.Slice(churned, func(i, j int) bool {
		if churned[i].Count != churned[j].Count {
			return churned[i].Count > churned[j].Count
		}
		return churned[i].Path < churned[j].Path
	})
	return churned
}
