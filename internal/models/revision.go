package models

import "time"

// RevisionSpec selects revisions either by explicit tokens or by selector
// flags. Selectors take precedence: when any is set, Tokens are ignored.
type RevisionSpec struct {
	Tokens    []string
	Selectors Selectors
}

type Selectors struct {
	All      bool
	Branches bool
	Tags     bool
	Since    string
	Before   string
}

func (s Selectors) Any() bool {
	return s.All || s.Branches || s.Tags || s.Since != "" || s.Before != ""
}

func (s Selectors) Range() bool {
	return s.Since != "" || s.Before != ""
}

func (s RevisionSpec) Empty() bool {
	return len(s.Tokens) == 0 && !s.Selectors.Any()
}

// Revision is a resolved commit.
type Revision struct {
	Hash   string
	Abbrev string
	Ref    string
	Time   time.Time
}

// ID is the identifier shown in labels: the ref that selected the commit,
// or its abbreviated hash.
func (r *Revision) ID() string {
	if r.Ref != "" {
		return r.Ref
	}
	if r.Abbrev != "" {
		return r.Abbrev
	}
	return r.Hash
}
