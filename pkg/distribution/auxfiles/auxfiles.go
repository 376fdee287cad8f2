// Package auxfiles copies the non-weight files a standalone model needs next
// to the extracted weights: tokenizer, generation config, chat template,
// license, and a config.json narrowed to the text decoder.
package auxfiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/model-extract/pkg/distribution/files"
	"github.com/docker/model-extract/pkg/distribution/source"
	"github.com/moby/sys/atomicwriter"
)

// DefaultNames are the auxiliary files copied when none are configured.
var DefaultNames = []string{
	"tokenizer.json",
	"tokenizer_config.json",
	"generation_config.json",
	"special_tokens_map.json",
	"tokenizer.model",
}

// CopyResult lists what Copy did with each requested name.
type CopyResult struct {
	Copied []string
	// Missing names were not present in the source.
	Missing []string
	// Rejected names do not classify as auxiliary files.
	Rejected []string
}

// Copy fetches each named file from fetcher and writes it into dst. Files that
// do not exist in the source are skipped. Weights, indexes and unknown files
// are rejected so they can never overwrite the extracted output.
func Copy(ctx context.Context, fetcher source.Fetcher, dst string, names []string) (*CopyResult, error) {
	res := &CopyResult{}
	for _, name := range names {
		if !files.Classify(name).Auxiliary() || !filepath.IsLocal(name) {
			res.Rejected = append(res.Rejected, name)
			continue
		}
		path, err := fetcher.Fetch(ctx, name)
		if errors.Is(err, source.ErrNotFound) {
			res.Missing = append(res.Missing, name)
			continue
		}
		if err != nil {
			return res, err
		}
		if err := copyFile(path, filepath.Join(dst, name)); err != nil {
			return res, err
		}
		res.Copied = append(res.Copied, name)
	}
	return res, nil
}

func copyFile(src, dst string) error {
	//nolint:gosec // G304: src comes from the source fetcher
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", dst, err)
	}
	out, err := atomicwriter.New(dst, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", filepath.Base(dst), err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("commit %s: %w", dst, err)
	}
	return nil
}
