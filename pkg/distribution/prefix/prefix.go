// Package prefix decides which tensor-name prefix identifies the sub-model to
// extract from a checkpoint.
//
// Candidates are held in an ordered rule table and checked top to bottom; the
// first one that matches any name wins. When none match, fallback markers
// detect a checkpoint that is already in the target layout, in which case the
// empty prefix (pass-through) is selected.
package prefix

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Separator splits a tensor name into segments.
const Separator = "."

// ErrNoConvention is returned when no rule and no fallback marker matches.
var ErrNoConvention = errors.New("no known tensor naming convention matched")

// Rule is a candidate prefix and its precedence; lower priorities are tried first.
type Rule struct {
	Prefix   string
	Priority int
}

// Kind tells how a Resolution was reached.
type Kind int

const (
	// KindPrefix means a rule matched and its prefix is stripped.
	KindPrefix Kind = iota
	// KindPassThrough means a fallback marker matched and names are kept as-is.
	KindPassThrough
	// KindForced means the prefix was given explicitly.
	KindForced
)

// String returns a string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindPrefix:
		return "prefix"
	case KindPassThrough:
		return "pass-through"
	case KindForced:
		return "forced"
	}
	return "unknown"
}

// Resolution is the outcome of resolving a naming convention.
type Resolution struct {
	// Prefix is stripped from kept names. Empty means pass-through.
	Prefix string
	Kind   Kind
	// Source is the rule prefix or fallback marker that matched.
	Source string
	// Matches is the number of names that matched Source.
	Matches int
}

// Table is an ordered set of candidate rules plus fallback markers.
type Table struct {
	rules   []Rule
	markers []string
}

// DefaultRules are the naming conventions of multi-modal checkpoints whose text
// decoder is nested under a language-model prefix.
var DefaultRules = []Rule{
	{Prefix: "model.language_model.", Priority: 10},
	{Prefix: "language_model.", Priority: 20},
}

// DefaultMarkers identify a checkpoint whose names are already flat.
var DefaultMarkers = []string{"model.layers."}

// DefaultTable returns the built-in rule table.
func DefaultTable() *Table {
	t, err := NewTable(DefaultRules, DefaultMarkers)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable orders rules by priority and validates the result. A rule must not
// be shadowed: when one candidate starts with another, the longer one has to
// be tried first, otherwise the general candidate would always win.
func NewTable(rules []Rule, markers []string) (*Table, error) {
	ordered := append([]Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	seen := make(map[string]struct{}, len(ordered))
	for i, r := range ordered {
		if r.Prefix == "" {
			return nil, fmt.Errorf("rule %d: empty prefix", i)
		}
		if _, dup := seen[r.Prefix]; dup {
			return nil, fmt.Errorf("rule %d: duplicate prefix %q", i, r.Prefix)
		}
		seen[r.Prefix] = struct{}{}
		for _, later := range ordered[i+1:] {
			if strings.HasPrefix(later.Prefix, r.Prefix) {
				return nil, fmt.Errorf("rule %q (priority %d) shadows more specific rule %q (priority %d)",
					r.Prefix, r.Priority, later.Prefix, later.Priority)
			}
		}
	}
	for i, m := range markers {
		if m == "" {
			return nil, fmt.Errorf("fallback marker %d: empty", i)
		}
	}

	return &Table{rules: ordered, markers: append([]string(nil), markers...)}, nil
}

// Rules returns the rules in evaluation order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Markers returns the fallback markers.
func (t *Table) Markers() []string {
	return append([]string(nil), t.markers...)
}

// Resolve picks the naming convention for names.
func (t *Table) Resolve(names []string) (Resolution, error) {
	for _, r := range t.rules {
		if n := count(names, r.Prefix); n > 0 {
			return Resolution{Prefix: r.Prefix, Kind: KindPrefix, Source: r.Prefix, Matches: n}, nil
		}
	}
	for _, m := range t.markers {
		if n := count(names, m); n > 0 {
			return Resolution{Prefix: "", Kind: KindPassThrough, Source: m, Matches: n}, nil
		}
	}
	return Resolution{}, &ResolutionError{Segments: Segments(names), Total: len(names)}
}

// Force resolves to an explicitly chosen prefix. It fails like Resolve when no
// name carries the prefix.
func Force(names []string, prefix string) (Resolution, error) {
	n := count(names, prefix)
	if n == 0 {
		return Resolution{}, &ResolutionError{Segments: Segments(names), Total: len(names), Forced: prefix}
	}
	return Resolution{Prefix: prefix, Kind: KindForced, Source: prefix, Matches: n}, nil
}

func count(names []string, prefix string) int {
	n := 0
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			n++
		}
	}
	return n
}
