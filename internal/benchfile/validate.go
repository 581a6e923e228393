package benchfile

import (
	"fmt"
	"strings"

	"github.com/mpataki/hypcmp/internal/models"
)

// ConfigError lists every problem found in a benchmark file.
type ConfigError struct {
	Path     string
	Problems []string
}

func (e *ConfigError) Error() string {
	where := "benchmark file"
	if e.Path != "" {
		where += " " + e.Path
	}
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid %s: %s", where, e.Problems[0])
	}
	return fmt.Sprintf("invalid %s:\n\t%s", where, strings.Join(e.Problems, "\n\t"))
}

// Validate checks cross-field invariants of a parsed benchmark.
func Validate(b *models.Benchmark) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(b.Runs) == 0 {
		add("benchmark must define at least one run")
	}

	switch b.AllScope {
	case models.AllScopeRepository, models.AllScopeBranch:
	default:
		add("all_scope must be %q or %q, got %q", models.AllScopeRepository, models.AllScopeBranch, b.AllScope)
	}

	p := b.Params
	counts := []struct {
		name string
		n    int
	}{{"warmup", p.Warmup}, {"runs", p.Runs}, {"min_runs", p.MinRuns}, {"max_runs", p.MaxRuns}}
	for _, c := range counts {
		if c.n < 0 {
			add("hyperfine.%s must not be negative", c.name)
		}
	}
	if p.MinRuns > 0 && p.MaxRuns > 0 && p.MinRuns > p.MaxRuns {
		add("hyperfine.min_runs (%d) is greater than max_runs (%d)", p.MinRuns, p.MaxRuns)
	}
	if p.Runs > 0 && (p.MinRuns > 0 || p.MaxRuns > 0) {
		add("hyperfine.runs cannot be combined with min_runs or max_runs")
	}

	params := make(map[string]bool)
	for _, l := range p.ParameterLists {
		if l.Name == "" {
			add("hyperfine.parameter_lists: parameter must have a name")
			continue
		}
		if params[l.Name] {
			add("hyperfine.parameter_lists: parameter %q defined twice", l.Name)
		}
		params[l.Name] = true
		if len(l.Values) == 0 {
			add("hyperfine.parameter_lists: parameter %q has no values", l.Name)
		}
	}
	if s := p.ParameterScan; s != nil {
		if len(p.ParameterLists) > 0 {
			add("hyperfine.parameter_scan cannot be combined with parameter_lists")
		}
		if s.Name == "" {
			add("hyperfine.parameter_scan must have a name")
		}
		if s.Min > s.Max {
			add("hyperfine.parameter_scan: min (%g) is greater than max (%g)", s.Min, s.Max)
		}
		if s.Step < 0 {
			add("hyperfine.parameter_scan: step must not be negative")
		}
		params[s.Name] = true
	}

	seen := make(map[string]bool)
	for _, r := range b.Runs {
		if strings.TrimSpace(r.Name) == "" {
			add("run must have a name")
		}
		if seen[r.Name] {
			add("run %q defined twice", r.Name)
		}
		seen[r.Name] = true

		if strings.TrimSpace(r.Command) == "" {
			add("run %q must have a command", r.Name)
		}
		if !r.Revisions.Empty() && params[models.CommitParameter] {
			add("run %q: parameter name %q is reserved for runs with commits", r.Name, models.CommitParameter)
		}
		for _, a := range r.Annotations {
			if a.Key == "" || strings.TrimSpace(a.Command) == "" {
				add("run %q: annotations need a key and a command", r.Name)
			}
		}
	}

	if pub := b.Publish; pub != nil {
		if strings.TrimSpace(pub.Endpoint) == "" {
			add("publish.endpoint is required")
		}
		if strings.Contains(pub.Endpoint, "://") {
			add("publish.endpoint must not include a scheme: %q", pub.Endpoint)
		}
		if strings.TrimSpace(pub.Bucket) == "" {
			add("publish.bucket is required")
		}
	}

	return problems
}
