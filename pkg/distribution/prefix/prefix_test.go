package prefix

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable_Resolve(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  Resolution
	}{
		{
			name: "gemma3 multimodal layout",
			names: []string{
				"model.language_model.layers.0.mlp.down_proj.weight",
				"model.language_model.embed_tokens.weight",
				"model.vision_tower.vision_model.embeddings.patch_embedding.weight",
				"model.multi_modal_projector.mm_input_projection_weight",
			},
			want: Resolution{Prefix: "model.language_model.", Kind: KindPrefix, Source: "model.language_model.", Matches: 2},
		},
		{
			name: "language_model at top level",
			names: []string{
				"language_model.model.embed.weight",
				"language_model.lm_head.weight",
				"vision.patch.weight",
			},
			want: Resolution{Prefix: "language_model.", Kind: KindPrefix, Source: "language_model.", Matches: 2},
		},
		{
			name: "specific rule wins even when listed names favour the general one",
			names: []string{
				"language_model.a",
				"language_model.b",
				"language_model.c",
				"model.language_model.d",
			},
			want: Resolution{Prefix: "model.language_model.", Kind: KindPrefix, Source: "model.language_model.", Matches: 1},
		},
		{
			name: "already flat",
			names: []string{
				"model.layers.0.weight",
				"model.embed_tokens.weight",
				"lm_head.weight",
			},
			want: Resolution{Prefix: "", Kind: KindPassThrough, Source: "model.layers.", Matches: 1},
		},
	}

	table := DefaultTable()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Resolve(tt.names)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_NoConvention(t *testing.T) {
	names := []string{
		"encoder.block.0.weight",
		"encoder.block.1.weight",
		"decoder.block.0.weight",
		"shared",
	}

	_, err := DefaultTable().Resolve(names)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoConvention)

	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, 4, resErr.Total)
	want := []SegmentCount{
		{Segment: "decoder", Count: 1},
		{Segment: "encoder", Count: 2},
		{Segment: "shared", Count: 1},
	}
	if diff := cmp.Diff(want, resErr.Segments); diff != "" {
		t.Errorf("Segments mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, err.Error(), "encoder.*=2")
	assert.Contains(t, err.Error(), "shared.*=1")
}

func TestResolve_Empty(t *testing.T) {
	_, err := DefaultTable().Resolve(nil)
	require.ErrorIs(t, err, ErrNoConvention)
}

func TestNewTable_OrdersByPriority(t *testing.T) {
	table, err := NewTable([]Rule{
		{Prefix: "b.", Priority: 30},
		{Prefix: "a.", Priority: 10},
		{Prefix: "c.", Priority: 20},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []Rule{
		{Prefix: "a.", Priority: 10},
		{Prefix: "c.", Priority: 20},
		{Prefix: "b.", Priority: 30},
	}, table.Rules())

	got, err := table.Resolve([]string{"b.x", "c.y"})
	require.NoError(t, err)
	assert.Equal(t, "c.", got.Prefix)
}

func TestNewTable_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		rules   []Rule
		markers []string
	}{
		{
			name: "general before specific",
			rules: []Rule{
				{Prefix: "language_model.", Priority: 10},
				{Prefix: "language_model.model.", Priority: 20},
			},
		},
		{
			name:  "empty prefix",
			rules: []Rule{{Prefix: "", Priority: 1}},
		},
		{
			name:  "duplicate prefix",
			rules: []Rule{{Prefix: "a.", Priority: 1}, {Prefix: "a.", Priority: 2}},
		},
		{
			name:    "empty marker",
			rules:   []Rule{{Prefix: "a.", Priority: 1}},
			markers: []string{""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.rules, tt.markers)
			require.Error(t, err)
		})
	}
}

func TestNewTable_SpecificFirstIsValid(t *testing.T) {
	table, err := NewTable([]Rule{
		{Prefix: "language_model.", Priority: 20},
		{Prefix: "language_model.model.", Priority: 10},
	}, []string{"model.layers."})
	require.NoError(t, err)
	assert.Equal(t, "language_model.model.", table.Rules()[0].Prefix)
	assert.Equal(t, []string{"model.layers."}, table.Markers())
}

func TestForce(t *testing.T) {
	names := []string{"text.a", "text.b", "audio.c"}

	got, err := Force(names, "text.")
	require.NoError(t, err)
	assert.Equal(t, Resolution{Prefix: "text.", Kind: KindForced, Source: "text.", Matches: 2}, got)

	_, err = Force(names, "video.")
	require.ErrorIs(t, err, ErrNoConvention)
	assert.Contains(t, err.Error(), `"video."`)
}

func TestSegments(t *testing.T) {
	got := Segments([]string{"a.b.c", "a.d", "e", ".f"})
	assert.Equal(t, []SegmentCount{
		{Segment: "", Count: 1},
		{Segment: "a", Count: 2},
		{Segment: "e", Count: 1},
	}, got)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "prefix", KindPrefix.String())
	assert.Equal(t, "pass-through", KindPassThrough.String())
	assert.Equal(t, "forced", KindForced.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
