package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multimodalIndex = `{
  "metadata": {"total_size": 123456},
  "weight_map": {
    "language_model.model.embed.weight": "s1",
    "language_model.lm_head.weight": "s1",
    "vision.patch.weight": "s2"
  }
}`

func TestParse_PreservesOrder(t *testing.T) {
	idx, err := Parse([]byte(`{"weight_map": {"z": "a", "b": "b", "m": "a"}}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "b", "m"}, idx.Names())
	assert.Equal(t, []string{"a", "b"}, idx.Shards())
	shard, ok := idx.Shard("m")
	assert.True(t, ok)
	assert.Equal(t, "a", shard)
	_, ok = idx.TotalSize()
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"missing weight_map", `{"metadata": {}}`, ErrMissingWeightMap},
		{"null weight_map", `{"weight_map": null}`, ErrMissingWeightMap},
		{"duplicate name", `{"weight_map": {"a": "s1", "a": "s2"}}`, ErrDuplicateTensor},
		{"array weight_map", `{"weight_map": ["a"]}`, nil},
		{"non-string shard", `{"weight_map": {"a": 1}}`, nil},
		{"not json", `{`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(multimodalIndex), 0o644))

	idx, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	size, ok := idx.TotalSize()
	assert.True(t, ok)
	assert.Equal(t, int64(123456), size)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFilter_Prefix(t *testing.T) {
	idx, err := Parse([]byte(multimodalIndex))
	require.NoError(t, err)

	sel := idx.Filter("language_model.")
	want := []Selected{
		{Name: "model.embed.weight", Original: "language_model.model.embed.weight", Shard: "s1"},
		{Name: "lm_head.weight", Original: "language_model.lm_head.weight", Shard: "s1"},
	}
	if diff := cmp.Diff(want, sel.Entries); diff != "" {
		t.Errorf("Filter() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, sel.Total())
	assert.Equal(t, 2, sel.Kept())
	assert.Equal(t, 1, sel.Skipped())
	assert.Equal(t, []string{"s1"}, sel.Shards())
	assert.Equal(t, map[string]string{"model.embed.weight": "s1", "lm_head.weight": "s1"}, sel.Mapping())
}

func TestFilter_EmptyPrefixPassesThrough(t *testing.T) {
	idx, err := Parse([]byte(`{"weight_map": {"model.layers.0.weight": "s1", "lm_head.weight": "s2"}}`))
	require.NoError(t, err)

	sel := idx.Filter("")
	assert.Equal(t, 2, sel.Kept())
	assert.Equal(t, 0, sel.Skipped())
	for _, e := range sel.Entries {
		assert.Equal(t, e.Original, e.Name)
	}
	assert.Equal(t, []string{"s1", "s2"}, sel.Shards())
}

func TestFilter_OnlyTruePrefixIsStripped(t *testing.T) {
	idx, err := Parse([]byte(`{"weight_map": {
		"language_model.a": "s1",
		"vision.language_model.b": "s2",
		"xlanguage_model.c": "s3",
		"language_model.language_model.d": "s1"
	}}`))
	require.NoError(t, err)

	sel := idx.Filter("language_model.")
	assert.Equal(t, map[string]string{
		"a":                "s1",
		"language_model.d": "s1",
	}, sel.Mapping())
	assert.Equal(t, []string{"s1"}, sel.Shards())
}

func TestFilter_InjectiveAndRoundTrip(t *testing.T) {
	idx, err := Parse([]byte(`{"weight_map": {
		"model.language_model.layers.0.q": "a",
		"model.language_model.layers.0.k": "a",
		"model.language_model.layers.1.q": "b",
		"model.language_model.norm": "b",
		"model.vision_tower.patch": "c",
		"layers.0.q": "d"
	}}`))
	require.NoError(t, err)

	for _, prefix := range []string{"", "model.language_model.", "model.", "layers."} {
		sel := idx.Filter(prefix)
		seen := map[string]string{}
		for _, e := range sel.Entries {
			if prev, dup := seen[e.Name]; dup {
				t.Fatalf("prefix %q: %q and %q both map to %q", prefix, prev, e.Original, e.Name)
			}
			seen[e.Name] = e.Original
			assert.Equal(t, e.Original, sel.OriginalName(e.Name))
			shard, ok := idx.Shard(e.Original)
			require.True(t, ok)
			assert.Equal(t, shard, e.Shard)
		}
	}
}

func TestSelection_ByShard(t *testing.T) {
	idx, err := Parse([]byte(`{"weight_map": {"p.a": "s2", "p.b": "s1", "p.c": "s2", "q.d": "s3"}}`))
	require.NoError(t, err)

	groups := idx.Filter("p.").ByShard()
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"a", "c"}, []string{groups["s2"][0].Name, groups["s2"][1].Name})
	assert.Equal(t, "b", groups["s1"][0].Name)
}

func TestBuild_TotalSize(t *testing.T) {
	idx := Build("model.safetensors", map[string]int64{
		"lm_head.weight":     24,
		"model.embed.weight": 40,
	})

	assert.Equal(t, []string{"lm_head.weight", "model.embed.weight"}, idx.Names())
	assert.Equal(t, []string{"model.safetensors"}, idx.Shards())
	size, ok := idx.TotalSize()
	require.True(t, ok)
	assert.Equal(t, int64(64), size)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	idx := Build("model.safetensors", map[string]int64{"b": 2, "a": 1})

	n, err := idx.WriteFile(path)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(b)), n)

	var doc struct {
		Metadata  map[string]int64  `json:"metadata"`
		WeightMap map[string]string `json:"weight_map"`
	}
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, map[string]int64{"total_size": 3}, doc.Metadata)
	assert.Equal(t, map[string]string{"a": "model.safetensors", "b": "model.safetensors"}, doc.WeightMap)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, idx.Entries(), reloaded.Entries())
}

func TestNew_CopiesInput(t *testing.T) {
	entries := []Entry{{Name: "a", Shard: "s1"}}
	idx, err := New(entries, nil)
	require.NoError(t, err)
	entries[0].Name = "changed"
	assert.Equal(t, []string{"a"}, idx.Names())

	_, err = New([]Entry{{Name: "a"}, {Name: "a"}}, nil)
	require.ErrorIs(t, err, ErrDuplicateTensor)
}
