// Package report renders region snapshots into the plain-text change reports
// sent to subscribers.
package report

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pscheid92/electionwatch/internal/domain"
)

var printer = message.NewPrinter(language.English)

// Formatter renders reports for a fixed, validated candidate list.
type Formatter struct {
	candidates []string
}

// NewFormatter requires at least two distinct, non-empty candidates.
func NewFormatter(candidates []string) (*Formatter, error) {
	seen := make(map[string]struct{}, len(candidates))
	cleaned := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		cleaned = append(cleaned, c)
	}
	if len(cleaned) < 2 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrTooFewCandidates, len(cleaned))
	}
	return &Formatter{candidates: cleaned}, nil
}

func (f *Formatter) Candidates() []string {
	return slices.Clone(f.candidates)
}

// Format renders a report. previous is nil for a plain situation report.
func (f *Formatter) Format(region string, current domain.StateSnapshot, previous *domain.StateSnapshot) string {
	return Format(region, current, f.candidates, previous)
}

// Format renders the current situation in region for candidates, preceded by
// per-candidate vote deltas when previous is given. Candidates missing from a
// snapshot count as zero votes.
func Format(region string, current domain.StateSnapshot, candidates []string, previous *domain.StateSnapshot) string {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b string) int {
		va, vb := current.Votes(a), current.Votes(b)
		switch {
		case va > vb:
			return -1
		case va < vb:
			return 1
		default:
			return 0
		}
	})

	var b strings.Builder

	if previous != nil {
		fmt.Fprintf(&b, "More votes are in for %s.\n", region)
		for _, c := range ranked {
			delta := current.Votes(c) - previous.Votes(c)
			if delta == 0 {
				continue
			}
			trend := "gained"
			if delta < 0 {
				trend = "lost"
			}
			b.WriteString(printer.Sprintf("%s %s %d votes.\n", c, trend, abs(delta)))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "The current situation in %s:\n", region)
	for _, c := range ranked {
		votes := current.Votes(c)
		b.WriteString(printer.Sprintf("%s has %d votes (%.2f%%)\n", c, votes, percent(votes, current.VotesCast)))
	}

	if len(ranked) < 2 {
		return b.String()
	}

	lead := abs(current.Votes(ranked[0]) - current.Votes(ranked[1]))
	open := current.Open()

	b.WriteString("\n")
	if Decided(open, lead) {
		b.WriteString(printer.Sprintf("%s won this state by a %d vote margin.\n", ranked[0], lead))
		return b.String()
	}

	b.WriteString(printer.Sprintf("%s is ahead of %s by %d votes.\n", ranked[0], ranked[1], lead))
	b.WriteString("\n")
	b.WriteString(printer.Sprintf("So far %d votes have been counted (%.1f%%)\n", current.VotesCast, percent(current.VotesCast, current.VotesAll)))
	b.WriteString(printer.Sprintf("This leaves about %d votes on the table.\n", roundHundreds(open)))

	return b.String()
}

// Decided reports whether the outstanding votes can no longer overturn the
// lead. A negative open count always decides the race.
func Decided(open, lead int64) bool {
	return open < lead
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// roundHundreds rounds to the nearest hundred, half to even.
func roundHundreds(n int64) int64 {
	return int64(math.RoundToEven(float64(n)/100) * 100)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
