package safetensors

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "model.safetensors")

	tensors := map[string]Tensor{
		"model.layers.0.weight": {DType: F16, Shape: []int64{2, 2}, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		"lm_head.weight":        {DType: U8, Shape: []int64{3}, Data: []byte{9, 10, 11}},
		"model.norm.scale":      {DType: F32, Shape: []int64{}, Data: []byte{12, 13, 14, 15}},
	}

	n, err := WriteFile(path, tensors, map[string]string{"format": "pt"})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), n)

	_, err = os.Stat(incompletePath(path))
	assert.True(t, os.IsNotExist(err), "staging file should be gone")

	shard, err := Open(path)
	require.NoError(t, err)
	defer shard.Close()

	assert.Equal(t, []string{"lm_head.weight", "model.layers.0.weight", "model.norm.scale"}, shard.Names())
	assert.Equal(t, map[string]string{"format": "pt"}, shard.Metadata())
	for name, want := range tensors {
		got, err := shard.Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, want.DType, got.DType, name)
		assert.Equal(t, want.Shape, got.Shape, name)
		assert.Equal(t, want.Data, got.Data, name)
	}
}

func TestWriteFile_HeaderAligned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	_, err := WriteFile(path, map[string]Tensor{
		"a": {DType: U8, Shape: []int64{1}, Data: []byte{1}},
	}, nil)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	headerLen := binary.LittleEndian.Uint64(b[:8])
	assert.Zero(t, headerLen%8)
	assert.NotContains(t, string(b[8:8+headerLen]), metadataKey)
}

func TestWriteFile_Deterministic(t *testing.T) {
	dir := t.TempDir()
	tensors := map[string]Tensor{
		"b": {DType: U8, Shape: []int64{2}, Data: []byte{1, 2}},
		"a": {DType: U8, Shape: []int64{1}, Data: []byte{3}},
		"c": {DType: U8, Shape: []int64{1}, Data: []byte{4}},
	}

	first := filepath.Join(dir, "first.safetensors")
	second := filepath.Join(dir, "second.safetensors")
	_, err := WriteFile(first, tensors, map[string]string{"format": "pt"})
	require.NoError(t, err)
	_, err = WriteFile(second, tensors, map[string]string{"format": "pt"})
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteFile_FailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	path := filepath.Join(blocker, "model.safetensors")
	_, err := WriteFile(path, map[string]Tensor{"a": {DType: U8, Shape: []int64{1}, Data: []byte{1}}}, nil)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "not-a-dir", entries[0].Name())
}
