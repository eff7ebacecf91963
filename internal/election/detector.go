package election

import (
	"slices"

	"github.com/pscheid92/electionwatch/internal/domain"
)

// DefaultThreshold is the smallest change in votes cast that is not noise,
// exclusive: a region is reported only when it moved by more than this.
const DefaultThreshold int64 = 10

// Detector finds regions whose votes cast moved by more than Threshold.
type Detector struct {
	Threshold int64
}

func NewDetector(threshold int64) Detector {
	return Detector{Threshold: threshold}
}

// Detect returns the regions present in old, latest and ofInterest whose votes
// cast changed by more than the threshold, sorted by name. Regions missing
// from either snapshot are skipped silently.
func (d Detector) Detect(old, latest domain.ElectionSnapshot, ofInterest []string) []string {
	var changed []string
	for _, region := range ofInterest {
		before, ok := old.State(region)
		if !ok {
			continue
		}
		after, ok := latest.State(region)
		if !ok {
			continue
		}
		if abs(after.VotesCast-before.VotesCast) > d.Threshold {
			changed = append(changed, region)
		}
	}
	slices.Sort(changed)
	return slices.Compact(changed)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
