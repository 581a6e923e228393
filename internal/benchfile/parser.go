package benchfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpataki/hypcmp/internal/models"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

type file struct {
	Label           string    `yaml:"label"`
	Output          string    `yaml:"output"`
	AllScope        string    `yaml:"all_scope"`
	Hyperfine       params    `yaml:"hyperfine"`
	HyperfineParams []string  `yaml:"hyperfine_params"`
	Publish         *publish  `yaml:"publish"`
	Run             yaml.Node `yaml:"run"`
}

type params struct {
	Binary         string    `yaml:"binary"`
	Warmup         int       `yaml:"warmup"`
	Runs           int       `yaml:"runs"`
	MinRuns        int       `yaml:"min_runs"`
	MaxRuns        int       `yaml:"max_runs"`
	ParameterLists yaml.Node `yaml:"parameter_lists"`
	ParameterScan  *scan     `yaml:"parameter_scan"`
	Shell          string    `yaml:"shell"`
	Args           []string  `yaml:"args"`
}

type scan struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
}

type publish struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	UseSSL   bool   `yaml:"use_ssl"`
}

type run struct {
	Command     string    `yaml:"command"`
	Setup       string    `yaml:"setup"`
	Prepare     string    `yaml:"prepare"`
	Cleanup     string    `yaml:"cleanup"`
	Shell       string    `yaml:"shell"`
	Commits     []string  `yaml:"commits"`
	Annotations yaml.Node `yaml:"annotations"`
}

// Load reads and validates a benchmark file. YAML is the native format;
// files ending in .json or .jsonc are read as JSON with comments and
// trailing commas allowed.
func Load(path string) (*models.Benchmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read benchmark file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data, err = hujson.Standardize(data)
		if err != nil {
			return nil, &ConfigError{Path: path, Problems: []string{fmt.Sprintf("invalid JSON: %v", err)}}
		}
	}

	bench, problems, err := Parse(data)
	if err != nil {
		return nil, &ConfigError{Path: path, Problems: []string{err.Error()}}
	}
	problems = append(problems, Validate(bench)...)
	if len(problems) > 0 {
		return nil, &ConfigError{Path: path, Problems: problems}
	}

	return bench, nil
}

// Parse decodes a benchmark document. Structural errors are returned as
// err; problems with individual fields are collected so that they can be
// reported together.
func Parse(data []byte) (*models.Benchmark, []string, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse benchmark YAML: %w", err)
	}

	var problems []string

	bench := &models.Benchmark{
		Label:    f.Label,
		Output:   f.Output,
		AllScope: models.AllScope(f.AllScope),
		Params: models.BenchmarkParams{
			Binary:  f.Hyperfine.Binary,
			Warmup:  f.Hyperfine.Warmup,
			Runs:    f.Hyperfine.Runs,
			MinRuns: f.Hyperfine.MinRuns,
			MaxRuns: f.Hyperfine.MaxRuns,
			Shell:   f.Hyperfine.Shell,
			Args:    append(append([]string(nil), f.Hyperfine.Args...), f.HyperfineParams...),
		},
	}
	if bench.Output == "" {
		bench.Output = models.DefaultOutput
	}
	if bench.AllScope == "" {
		bench.AllScope = models.AllScopeRepository
	}
	if s := f.Hyperfine.ParameterScan; s != nil {
		bench.Params.ParameterScan = &models.ParameterScan{Name: s.Name, Min: s.Min, Max: s.Max, Step: s.Step}
	}
	if p := f.Publish; p != nil {
		bench.Publish = &models.Publish{
			Endpoint: p.Endpoint,
			Bucket:   p.Bucket,
			Prefix:   p.Prefix,
			Region:   p.Region,
			UseSSL:   p.UseSSL,
		}
	}

	lists, err := mappingPairs(&f.Hyperfine.ParameterLists)
	if err != nil {
		return nil, nil, fmt.Errorf("hyperfine.parameter_lists: %w", err)
	}
	for _, pair := range lists {
		var values []string
		if err := pair.value.Decode(&values); err != nil {
			return nil, nil, fmt.Errorf("hyperfine.parameter_lists.%s: %w", pair.key, err)
		}
		bench.Params.ParameterLists = append(bench.Params.ParameterLists, models.ParameterList{Name: pair.key, Values: values})
	}

	runs, err := mappingPairs(&f.Run)
	if err != nil {
		return nil, nil, fmt.Errorf("run: %w", err)
	}
	for _, pair := range runs {
		var r run
		if err := pair.value.Decode(&r); err != nil {
			return nil, nil, fmt.Errorf("run.%s: %w", pair.key, err)
		}

		def := &models.RunDefinition{
			Name:    pair.key,
			Command: r.Command,
			Setup:   r.Setup,
			Prepare: r.Prepare,
			Cleanup: r.Cleanup,
			Shell:   r.Shell,
		}

		revs, revProblems := ParseCommits(r.Commits)
		def.Revisions = revs
		for _, p := range revProblems {
			problems = append(problems, fmt.Sprintf("run %q: commits: %s", pair.key, p))
		}

		annotations, err := mappingPairs(&r.Annotations)
		if err != nil {
			return nil, nil, fmt.Errorf("run.%s.annotations: %w", pair.key, err)
		}
		for _, a := range annotations {
			var cmd string
			if err := a.value.Decode(&cmd); err != nil {
				return nil, nil, fmt.Errorf("run.%s.annotations.%s: %w", pair.key, a.key, err)
			}
			def.Annotations = append(def.Annotations, models.Annotation{Key: a.key, Command: cmd})
		}

		bench.Runs = append(bench.Runs, def)
	}

	return bench, problems, nil
}

type pair struct {
	key   string
	value *yaml.Node
}

// mappingPairs returns the entries of a YAML mapping in document order.
// An absent node yields no entries.
func mappingPairs(node *yaml.Node) ([]pair, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	pairs := make([]pair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		pairs = append(pairs, pair{key: node.Content[i].Value, value: node.Content[i+1]})
	}
	return pairs, nil
}

// ParseCommits splits a commits list into explicit tokens and selector
// flags. Entries starting with "--" are selectors.
func ParseCommits(commits []string) (models.RevisionSpec, []string) {
	var spec models.RevisionSpec
	var problems []string

	for _, c := range commits {
		c = strings.TrimSpace(c)
		if c == "" {
			problems = append(problems, "empty commit entry")
			continue
		}
		if !strings.HasPrefix(c, "--") {
			spec.Tokens = append(spec.Tokens, c)
			continue
		}

		name, value, hasValue := strings.Cut(c, "=")
		switch name {
		case "--all", "--branches", "--tags":
			if hasValue {
				problems = append(problems, fmt.Sprintf("%s does not take a value", name))
				continue
			}
			switch name {
			case "--all":
				spec.Selectors.All = true
			case "--branches":
				spec.Selectors.Branches = true
			case "--tags":
				spec.Selectors.Tags = true
			}
		case "--since", "--before":
			if !hasValue || value == "" {
				problems = append(problems, fmt.Sprintf("%s requires a value, as in %s=<ref>", name, name))
				continue
			}
			target := &spec.Selectors.Since
			if name == "--before" {
				target = &spec.Selectors.Before
			}
			if *target != "" {
				problems = append(problems, fmt.Sprintf("%s given more than once", name))
				continue
			}
			*target = value
		default:
			problems = append(problems, fmt.Sprintf("unknown selector %q", c))
		}
	}

	kinds := 0
	for _, set := range []bool{spec.Selectors.All, spec.Selectors.Branches, spec.Selectors.Tags, spec.Selectors.Range()} {
		if set {
			kinds++
		}
	}
	if kinds > 1 {
		problems = append(problems, "--all, --branches, --tags and --since/--before cannot be combined")
	}

	return spec, problems
}
