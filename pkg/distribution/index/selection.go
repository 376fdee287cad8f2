package index

import "strings"

// Selected is a kept entry after filtering: its new name, its name in the
// source index and the shard holding it.
type Selected struct {
	Name     string
	Original string
	Shard    string
}

// Selection is the filtered and renamed view of an index for one prefix.
type Selection struct {
	Prefix  string
	Entries []Selected
	total   int
}

// Filter keeps the entries whose name starts with prefix and strips exactly
// len(prefix) leading bytes from each kept name. An empty prefix keeps every
// entry unchanged. Names containing prefix anywhere but at the start are
// skipped, never rewritten.
func (idx *Index) Filter(prefix string) *Selection {
	sel := &Selection{Prefix: prefix, total: len(idx.entries)}
	for _, e := range idx.entries {
		if !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		sel.Entries = append(sel.Entries, Selected{
			Name:     e.Name[len(prefix):],
			Original: e.Name,
			Shard:    e.Shard,
		})
	}
	return sel
}

// Total returns the number of entries in the source index.
func (s *Selection) Total() int {
	return s.total
}

// Kept returns the number of selected entries.
func (s *Selection) Kept() int {
	return len(s.Entries)
}

// Skipped returns the number of source entries that were not selected.
func (s *Selection) Skipped() int {
	return s.total - len(s.Entries)
}

// Shards returns the distinct shard files holding selected entries, sorted.
// Shards that only hold skipped entries are not included.
func (s *Selection) Shards() []string {
	return distinctShards(s.Entries, func(e Selected) string { return e.Shard })
}

// ByShard groups the selected entries by shard file, keeping their order.
func (s *Selection) ByShard() map[string][]Selected {
	groups := make(map[string][]Selected)
	for _, e := range s.Entries {
		groups[e.Shard] = append(groups[e.Shard], e)
	}
	return groups
}

// OriginalName re-prepends the prefix to a new name.
func (s *Selection) OriginalName(name string) string {
	return s.Prefix + name
}

// Mapping returns the new name to shard mapping.
func (s *Selection) Mapping() map[string]string {
	m := make(map[string]string, len(s.Entries))
	for _, e := range s.Entries {
		m[e.Name] = e.Shard
	}
	return m
}
