// Package index models a sharded safetensors weight index
// (model.safetensors.index.json): an ordered mapping from tensor name to the
// shard file holding it, plus optional metadata.
package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/moby/sys/atomicwriter"
)

// DefaultFileName is the conventional name of a safetensors weight index.
const DefaultFileName = "model.safetensors.index.json"

const totalSizeKey = "total_size"

var (
	// ErrMissingWeightMap is returned when an index document has no weight_map.
	ErrMissingWeightMap = errors.New("index has no weight_map")
	// ErrDuplicateTensor is returned when a tensor name appears twice in a weight_map.
	ErrDuplicateTensor = errors.New("duplicate tensor name in weight_map")
)

// Entry maps one tensor to the shard file that stores it.
type Entry struct {
	Name  string
	Shard string
}

// Index is an immutable weight index. Entries keep the order of the source
// document.
type Index struct {
	entries  []Entry
	byName   map[string]int
	metadata map[string]json.RawMessage
}

type document struct {
	Metadata  map[string]json.RawMessage `json:"metadata,omitempty"`
	WeightMap json.RawMessage            `json:"weight_map"`
}

// Load reads and parses the index file at path.
func Load(path string) (*Index, error) {
	//nolint:gosec // G304: index path is resolved by the caller
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	idx, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse index %s: %w", path, err)
	}
	return idx, nil
}

// Parse decodes an index document.
func Parse(b []byte) (*Index, error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}
	if len(doc.WeightMap) == 0 || bytes.Equal(bytes.TrimSpace(doc.WeightMap), []byte("null")) {
		return nil, ErrMissingWeightMap
	}
	entries, err := decodeWeightMap(doc.WeightMap)
	if err != nil {
		return nil, err
	}
	return newIndex(entries, doc.Metadata)
}

// New builds an index from entries in the given order.
func New(entries []Entry, metadata map[string]json.RawMessage) (*Index, error) {
	return newIndex(append([]Entry(nil), entries...), copyMetadata(metadata))
}

func newIndex(entries []Entry, metadata map[string]json.RawMessage) (*Index, error) {
	byName := make(map[string]int, len(entries))
	for i, e := range entries {
		if _, dup := byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTensor, e.Name)
		}
		byName[e.Name] = i
	}
	return &Index{entries: entries, byName: byName, metadata: metadata}, nil
}

// decodeWeightMap decodes a JSON object of string values, preserving key order.
func decodeWeightMap(raw json.RawMessage) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode weight_map: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode weight_map: expected object, got %v", tok)
	}

	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode weight_map: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("decode weight_map: unexpected key %v", tok)
		}
		var shard string
		if err := dec.Decode(&shard); err != nil {
			return nil, fmt.Errorf("decode weight_map[%q]: %w", name, err)
		}
		entries = append(entries, Entry{Name: name, Shard: shard})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode weight_map: %w", err)
	}
	return entries, nil
}

// Len returns the number of tensors in the index.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Entries returns a copy of the entries in document order.
func (idx *Index) Entries() []Entry {
	return append([]Entry(nil), idx.entries...)
}

// Names returns the tensor names in document order.
func (idx *Index) Names() []string {
	names := make([]string, len(idx.entries))
	for i, e := range idx.entries {
		names[i] = e.Name
	}
	return names
}

// Shard returns the shard file holding name.
func (idx *Index) Shard(name string) (string, bool) {
	i, ok := idx.byName[name]
	if !ok {
		return "", false
	}
	return idx.entries[i].Shard, true
}

// Shards returns the distinct shard files referenced by the index, sorted.
func (idx *Index) Shards() []string {
	return distinctShards(idx.entries, func(e Entry) string { return e.Shard })
}

// TotalSize returns metadata.total_size when present and numeric.
func (idx *Index) TotalSize() (int64, bool) {
	raw, ok := idx.metadata[totalSizeKey]
	if !ok {
		return 0, false
	}
	var size int64
	if err := json.Unmarshal(raw, &size); err != nil {
		return 0, false
	}
	return size, true
}

// Metadata returns a copy of the raw metadata object.
func (idx *Index) Metadata() map[string]json.RawMessage {
	return copyMetadata(idx.metadata)
}

// Build returns a fresh index pointing every tensor in sizes at fileName.
// sizes maps tensor name to its byte footprint; metadata.total_size is their sum.
func Build(fileName string, sizes map[string]int64) *Index {
	names := make([]string, 0, len(sizes))
	var total int64
	for name, size := range sizes {
		names = append(names, name)
		total += size
	}
	sort.Strings(names)

	entries := make([]Entry, len(names))
	byName := make(map[string]int, len(names))
	for i, name := range names {
		entries[i] = Entry{Name: name, Shard: fileName}
		byName[name] = i
	}
	return &Index{
		entries: entries,
		byName:  byName,
		metadata: map[string]json.RawMessage{
			totalSizeKey: json.RawMessage(fmt.Sprintf("%d", total)),
		},
	}
}

// Marshal encodes the index as indented JSON with a sorted weight_map.
func (idx *Index) Marshal() ([]byte, error) {
	weightMap := make(map[string]string, len(idx.entries))
	for _, e := range idx.entries {
		weightMap[e.Name] = e.Shard
	}
	wm, err := json.Marshal(weightMap)
	if err != nil {
		return nil, fmt.Errorf("marshal weight_map: %w", err)
	}
	b, err := json.MarshalIndent(document{Metadata: idx.metadata, WeightMap: wm}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}
	return append(b, '\n'), nil
}

// WriteFile atomically writes the index to path.
func (idx *Index) WriteFile(path string) (int64, error) {
	b, err := idx.Marshal()
	if err != nil {
		return 0, err
	}
	if err := atomicwriter.WriteFile(path, b, 0o644); err != nil {
		return 0, fmt.Errorf("write index %s: %w", path, err)
	}
	return int64(len(b)), nil
}

func copyMetadata(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func distinctShards[T any](items []T, shard func(T) string) []string {
	seen := make(map[string]struct{})
	var shards []string
	for _, item := range items {
		s := shard(item)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		shards = append(shards, s)
	}
	sort.Strings(shards)
	return shards
}
