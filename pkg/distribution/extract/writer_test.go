package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/model-extract/pkg/distribution/safetensors"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	require.NoError(t, store.Put("b", safetensors.Tensor{DType: safetensors.F16, Shape: []int64{2}, Data: []byte{1, 2, 3, 4}}))
	require.NoError(t, store.Put("a", safetensors.Tensor{DType: safetensors.U8, Shape: []int64{1}, Data: []byte{9}}))
	return store
}

func TestStore_Put(t *testing.T) {
	store := testStore(t)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, []string{"a", "b"}, store.Names())
	assert.Equal(t, int64(5), store.TotalSize())

	err := store.Put("a", safetensors.Tensor{DType: safetensors.U8, Shape: []int64{1}, Data: []byte{0}})
	require.Error(t, err)

	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte{9}, got.Data)
}

func TestStoreWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w := NewStoreWriter("", "", nil)

	out, err := w.Write(dir, testStore(t), map[string]string{"format": "pt"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, DefaultWeightsName), out.WeightsPath)
	assert.Equal(t, filepath.Join(dir, DefaultIndexName), out.IndexPath)
	assert.Equal(t, int64(5), out.TotalSize)
	assert.Equal(t, 2, out.Tensors)

	b, err := os.ReadFile(out.WeightsPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(b)), out.WeightsSize)
	assert.Equal(t, digest.FromBytes(b), out.Digest)

	idx, err := os.ReadFile(out.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(idx)), out.IndexSize)
	assert.JSONEq(t, `{
		"metadata": {"total_size": 5},
		"weight_map": {"a": "model.safetensors", "b": "model.safetensors"}
	}`, string(idx))
}

func TestStoreWriter_CustomNames(t *testing.T) {
	dir := t.TempDir()
	out, err := NewStoreWriter("text.safetensors", "text.index.json", nil).Write(dir, testStore(t), nil)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "text.safetensors"))
	assert.Equal(t, map[string]string{"a": "text.safetensors", "b": "text.safetensors"},
		readWeightMap(t, out.IndexPath))
}

func TestStoreWriter_IndexFailureRemovesWeights(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory where the index should go makes the rename fail.
	blocker := filepath.Join(dir, DefaultIndexName)
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "x"), 0o755))

	_, err := NewStoreWriter("", "", nil).Write(dir, testStore(t), nil)
	require.ErrorIs(t, err, ErrIO)
	assert.NoFileExists(t, filepath.Join(dir, DefaultWeightsName))
}

func TestStoreWriter_OutputIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := NewStoreWriter("", "", nil).Write(file, testStore(t), nil)
	require.ErrorIs(t, err, ErrIO)
}
