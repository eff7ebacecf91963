// Command replay diffs two saved upstream payloads and prints the reports a
// subscriber watching the given regions would have received.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pscheid92/electionwatch/internal/domain"
	"github.com/pscheid92/electionwatch/internal/election"
	"github.com/pscheid92/electionwatch/internal/report"
)

const (
	defaultRegions    = "Alaska,Michigan,Wisconsin,Arizona,Georgia,Nevada,North Carolina,Pennsylvania"
	defaultCandidates = "Joe Biden,Donald Trump"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	var (
		oldPath    = fs.String("old", "old.json", "Earlier payload file")
		newPath    = fs.String("new", "new.json", "Later payload file")
		regions    = fs.String("regions", defaultRegions, "Comma-separated regions to compare (names or abbreviations)")
		candidates = fs.String("candidates", defaultCandidates, "Comma-separated candidates to report on")
		threshold  = fs.Int64("threshold", 10, "Minimum absolute change in votes cast")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	formatter, err := report.NewFormatter(splitList(*candidates))
	if err != nil {
		return err
	}

	watchlist, err := resolveRegions(election.USRegions(), splitList(*regions))
	if err != nil {
		return err
	}

	old, err := load(*oldPath)
	if err != nil {
		return err
	}
	latest, err := load(*newPath)
	if err != nil {
		return err
	}

	changed := election.NewDetector(*threshold).Detect(old, latest, watchlist)
	if len(changed) == 0 {
		_, err := fmt.Fprintln(out, "No changes.")
		return err
	}

	for i, region := range changed {
		current, _ := latest.State(region)
		var prev *domain.StateSnapshot
		if previous, ok := old.State(region); ok {
			prev = &previous
		}
		if i > 0 {
			if _, err := fmt.Fprintln(out); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprint(out, formatter.Format(region, current, prev)); err != nil {
			return err
		}
	}
	return nil
}

func load(path string) (domain.ElectionSnapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.ElectionSnapshot{}, fmt.Errorf("read %s: %w", path, err)
	}
	snap, err := election.Parse(raw)
	if err != nil {
		return domain.ElectionSnapshot{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return snap, nil
}

func resolveRegions(resolver domain.RegionResolver, names []string) ([]string, error) {
	resolved := make([]string, 0, len(names))
	for _, name := range names {
		region, ok := resolver.Resolve(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRegion, name)
		}
		resolved = append(resolved, region)
	}
	return resolved, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
