package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/model-extract/pkg/distribution/index"
	"github.com/docker/model-extract/pkg/distribution/safetensors"
	"github.com/docker/model-extract/pkg/logging"
	"github.com/opencontainers/go-digest"
)

const (
	// DefaultWeightsName is the output weights file.
	DefaultWeightsName = "model.safetensors"
	// DefaultIndexName is the output index file.
	DefaultIndexName = index.DefaultFileName
)

// Output describes the files written by a StoreWriter.
type Output struct {
	Dir         string
	WeightsPath string
	IndexPath   string
	WeightsSize int64
	IndexSize   int64
	// TotalSize is the sum of tensor footprints recorded in the index.
	TotalSize int64
	// Digest is the sha256 digest of the weights file.
	Digest  digest.Digest
	Tensors int
}

// StoreWriter persists a Store as one safetensors file plus an index mapping
// every tensor to it.
type StoreWriter struct {
	WeightsName string
	IndexName   string
	log         logging.Logger
}

// NewStoreWriter returns a writer using the given file names. Empty names fall
// back to the defaults.
func NewStoreWriter(weightsName, indexName string, log logging.Logger) *StoreWriter {
	if weightsName == "" {
		weightsName = DefaultWeightsName
	}
	if indexName == "" {
		indexName = DefaultIndexName
	}
	if log == nil {
		log = logging.Discard()
	}
	return &StoreWriter{WeightsName: weightsName, IndexName: indexName, log: log}
}

// Write creates dir if needed and writes the weights and index files into it.
// Existing files with the same names are replaced. When the index cannot be
// written the weights file is removed again, so a failed Write leaves no
// partial output behind.
func (w *StoreWriter) Write(dir string, store *Store, metadata map[string]string) (*Output, error) {
	created, err := ensureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: create output directory: %w", ErrIO, err)
	}
	cleanup := func() {
		if created {
			// Only succeeds when nothing else was put there.
			_ = os.Remove(dir)
		}
	}

	weightsPath := filepath.Join(dir, w.WeightsName)
	weightsSize, err := safetensors.WriteFile(weightsPath, store.Tensors(), metadata)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: write %s: %w", ErrIO, w.WeightsName, err)
	}
	w.log.WithField("path", weightsPath).Debugf("Wrote %d tensors", store.Len())

	idx := index.Build(w.WeightsName, store.ByteSizes())
	indexPath := filepath.Join(dir, w.IndexName)
	indexSize, err := idx.WriteFile(indexPath)
	if err != nil {
		if rerr := os.Remove(weightsPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			w.log.WithError(rerr).Warn("Failed to remove weights file after index write failure")
		}
		cleanup()
		return nil, fmt.Errorf("%w: write %s: %w", ErrIO, w.IndexName, err)
	}

	dgst, err := fileDigest(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: digest %s: %w", ErrIO, w.WeightsName, err)
	}
	total, _ := idx.TotalSize()

	return &Output{
		Dir:         dir,
		WeightsPath: weightsPath,
		IndexPath:   indexPath,
		WeightsSize: weightsSize,
		IndexSize:   indexSize,
		TotalSize:   total,
		Digest:      dgst,
		Tensors:     store.Len(),
	}, nil
}

// ensureDir creates dir and reports whether it did not exist before.
func ensureDir(dir string) (bool, error) {
	fi, err := os.Stat(dir)
	switch {
	case err == nil:
		if !fi.IsDir() {
			return false, fmt.Errorf("%s is not a directory", dir)
		}
		return false, nil
	case !errors.Is(err, os.ErrNotExist):
		return false, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	return true, nil
}

func fileDigest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return digest.FromReader(f)
}
