package election

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pscheid92/electionwatch/internal/domain"
)

const (
	headerName = iota
	headerVotesCast
	headerVotesAll
	headerPercent
	headerFields
)

const (
	rowGivenName = iota
	rowFamilyName
	rowParty
	_
	rowVotes
	rowFields
)

// Parse normalizes the upstream payload into an ElectionSnapshot.
//
// The payload looks like {"P": {"<idx>": [header, [row, ...]]}} where header is
// [name, votes_cast, votes_all, percent] and each row is
// [given, family, party, _, votes]. Numbers may arrive as JSON numbers or
// numeric strings. Any structural problem or non-integer count fails the whole
// parse with domain.ErrMalformedPayload.
func Parse(raw []byte) (domain.ElectionSnapshot, error) {
	if !gjson.ValidBytes(raw) {
		return domain.ElectionSnapshot{}, fmt.Errorf("%w: invalid JSON", domain.ErrMalformedPayload)
	}

	p := gjson.GetBytes(raw, "P")
	if !p.IsObject() {
		return domain.ElectionSnapshot{}, fmt.Errorf("%w: missing region map \"P\"", domain.ErrMalformedPayload)
	}

	states := make(map[string]domain.StateSnapshot)
	var parseErr error
	p.ForEach(func(key, value gjson.Result) bool {
		state, err := parseRegion(value)
		if err != nil {
			parseErr = fmt.Errorf("%w: region %s: %w", domain.ErrMalformedPayload, key.String(), err)
			return false
		}
		if _, dup := states[state.Name]; dup {
			slog.Warn("Duplicate region in payload, keeping last", "region", state.Name, "index", key.String())
		}
		states[state.Name] = state
		return true
	})
	if parseErr != nil {
		return domain.ElectionSnapshot{}, parseErr
	}

	return domain.NewElectionSnapshot(states), nil
}

func parseRegion(value gjson.Result) (domain.StateSnapshot, error) {
	parts := value.Array()
	if !value.IsArray() || len(parts) < 2 {
		return domain.StateSnapshot{}, fmt.Errorf("expected [header, rows]")
	}

	header := parts[0].Array()
	if !parts[0].IsArray() || len(header) < headerFields {
		return domain.StateSnapshot{}, fmt.Errorf("header needs %d fields", headerFields)
	}

	name := strings.TrimSpace(header[headerName].String())
	if name == "" {
		return domain.StateSnapshot{}, fmt.Errorf("empty region name")
	}
	cast, err := parseCount(header[headerVotesCast])
	if err != nil {
		return domain.StateSnapshot{}, fmt.Errorf("votes cast: %w", err)
	}
	all, err := parseCount(header[headerVotesAll])
	if err != nil {
		return domain.StateSnapshot{}, fmt.Errorf("votes total: %w", err)
	}
	pct, err := parseCount(header[headerPercent])
	if err != nil {
		return domain.StateSnapshot{}, fmt.Errorf("percentage: %w", err)
	}

	if !parts[1].IsArray() {
		return domain.StateSnapshot{}, fmt.Errorf("candidate rows must be a list")
	}

	candidates := make(map[string]domain.CandidateTally)
	for i, row := range parts[1].Array() {
		fields := row.Array()
		if !row.IsArray() || len(fields) < rowFields {
			return domain.StateSnapshot{}, fmt.Errorf("candidate row %d needs %d fields", i, rowFields)
		}
		votes, err := parseCount(fields[rowVotes])
		if err != nil {
			return domain.StateSnapshot{}, fmt.Errorf("candidate row %d votes: %w", i, err)
		}

		key := candidateKey(fields[rowGivenName].String(), fields[rowFamilyName].String())
		if _, dup := candidates[key]; dup {
			slog.Warn("Duplicate candidate in region, keeping last", "region", name, "candidate", key)
		}
		candidates[key] = domain.CandidateTally{
			Party: strings.TrimSpace(fields[rowParty].String()),
			Votes: votes,
		}
	}

	return domain.StateSnapshot{
		Name:       name,
		VotesCast:  cast,
		VotesAll:   all,
		VotesRatio: float64(pct) / 100,
		Candidates: candidates,
	}, nil
}

func candidateKey(given, family string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{given, family} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// parseCount accepts a JSON integer or a string holding one.
func parseCount(v gjson.Result) (int64, error) {
	var raw string
	switch v.Type {
	case gjson.Number:
		raw = v.Raw
	case gjson.String:
		raw = strings.TrimSpace(v.Str)
	default:
		return 0, fmt.Errorf("expected integer, got %s", v.Type)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}
