package prefix

import (
	"fmt"
	"sort"
	"strings"
)

// SegmentCount is a distinct top-level name segment and how many names carry it.
type SegmentCount struct {
	Segment string
	Count   int
}

// Segments counts the distinct top-level segments (the text before the first
// separator) of names, sorted by segment. A name without a separator is its own
// segment.
func Segments(names []string) []SegmentCount {
	counts := make(map[string]int)
	for _, name := range names {
		segment, _, _ := strings.Cut(name, Separator)
		counts[segment]++
	}
	out := make([]SegmentCount, 0, len(counts))
	for segment, n := range counts {
		out = append(out, SegmentCount{Segment: segment, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Segment < out[j].Segment
	})
	return out
}

// ResolutionError reports that no naming convention matched, with the observed
// top-level segments to diagnose the actual layout.
type ResolutionError struct {
	Segments []SegmentCount
	Total    int
	// Forced is the explicitly requested prefix, if any.
	Forced string
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	if e.Forced != "" {
		fmt.Fprintf(&b, "no tensor name starts with prefix %q", e.Forced)
	} else {
		b.WriteString(ErrNoConvention.Error())
	}
	fmt.Fprintf(&b, " (%d tensors", e.Total)
	if len(e.Segments) > 0 {
		b.WriteString("; top-level prefixes:")
		for _, s := range e.Segments {
			fmt.Fprintf(&b, " %s%s*=%d", s.Segment, Separator, s.Count)
		}
	}
	b.WriteString(")")
	return b.String()
}

// Is makes errors.Is(err, ErrNoConvention) hold for resolution failures.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrNoConvention
}
