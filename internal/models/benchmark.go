package models

type AllScope string

const (
	AllScopeRepository AllScope = "repository"
	AllScopeBranch     AllScope = "branch"
)

const DefaultOutput = "hypcmp.json"

// Benchmark is a parsed benchmark file.
type Benchmark struct {
	Label    string
	Output   string
	Params   BenchmarkParams
	AllScope AllScope
	Publish  *Publish
	Runs     []*RunDefinition
}

// Versioned reports whether any run needs the working tree to move.
func (b *Benchmark) Versioned() bool {
	for _, r := range b.Runs {
		if !r.Revisions.Empty() {
			return true
		}
	}
	return false
}

func (b *Benchmark) Run(name string) *RunDefinition {
	for _, r := range b.Runs {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// BenchmarkParams are the hyperfine settings shared by every run.
type BenchmarkParams struct {
	Binary         string
	Warmup         int
	Runs           int
	MinRuns        int
	MaxRuns        int
	ParameterLists []ParameterList
	ParameterScan  *ParameterScan
	Shell          string
	Args           []string
}

type ParameterList struct {
	Name   string
	Values []string
}

type ParameterScan struct {
	Name string
	Min  float64
	Max  float64
	Step float64
}

type Publish struct {
	Endpoint string
	Bucket   string
	Prefix   string
	Region   string
	UseSSL   bool
}
