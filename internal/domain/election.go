package domain

import (
	"encoding/json"
	"maps"
	"slices"
)

// CandidateTally is one candidate's count within a region.
type CandidateTally struct {
	Party string `json:"party"`
	Votes int64  `json:"votes"`
}

// StateSnapshot is the normalized count for a single region at one fetch.
//
// VotesCast is expected to be <= VotesAll but upstream feeds are noisy, so
// nothing here enforces it. Candidates must be treated as read-only once the
// snapshot has been handed out.
type StateSnapshot struct {
	Name       string                    `json:"name"`
	VotesCast  int64                     `json:"votes_cast"`
	VotesAll   int64                     `json:"votes_all"`
	VotesRatio float64                   `json:"votes_ratio"`
	Candidates map[string]CandidateTally `json:"candidates"`
}

// Votes returns the candidate's count, or 0 when the candidate is absent.
func (s StateSnapshot) Votes(candidate string) int64 {
	return s.Candidates[candidate].Votes
}

// Open returns the number of votes still outstanding. It may be negative.
func (s StateSnapshot) Open() int64 {
	return s.VotesAll - s.VotesCast
}

// ElectionSnapshot maps region names to their state at one fetch. Values are
// immutable: updates go through WithStates, which returns a new snapshot.
type ElectionSnapshot struct {
	states map[string]StateSnapshot
}

// NewElectionSnapshot copies states into a new snapshot.
func NewElectionSnapshot(states map[string]StateSnapshot) ElectionSnapshot {
	return ElectionSnapshot{states: maps.Clone(states)}
}

// State returns the snapshot for region.
func (e ElectionSnapshot) State(region string) (StateSnapshot, bool) {
	s, ok := e.states[region]
	return s, ok
}

// Regions returns all region names in sorted order.
func (e ElectionSnapshot) Regions() []string {
	return slices.Sorted(maps.Keys(e.states))
}

func (e ElectionSnapshot) Len() int {
	return len(e.states)
}

// WithStates returns a copy of e where each region in updates is replaced.
func (e ElectionSnapshot) WithStates(updates map[string]StateSnapshot) ElectionSnapshot {
	next := make(map[string]StateSnapshot, len(e.states)+len(updates))
	maps.Copy(next, e.states)
	maps.Copy(next, updates)
	return ElectionSnapshot{states: next}
}

func (e ElectionSnapshot) MarshalJSON() ([]byte, error) {
	if e.states == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.states)
}

func (e *ElectionSnapshot) UnmarshalJSON(data []byte) error {
	var states map[string]StateSnapshot
	if err := json.Unmarshal(data, &states); err != nil {
		return err
	}
	e.states = states
	return nil
}
