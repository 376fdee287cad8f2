// Package extract copies the tensors of one sub-model out of a sharded
// checkpoint into a single safetensors file.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/docker/model-extract/pkg/distribution/index"
	"github.com/docker/model-extract/pkg/distribution/prefix"
	"github.com/docker/model-extract/pkg/distribution/safetensors"
	"github.com/docker/model-extract/pkg/distribution/source"
	"github.com/docker/model-extract/internal/utils"
	"github.com/docker/model-extract/pkg/logging"
	"golang.org/x/sync/errgroup"
)

// formatKey is the safetensors metadata entry carried over to the output.
const formatKey = "format"

// Extractor reads the target tensors of a checkpoint shard by shard.
type Extractor struct {
	fetcher source.Fetcher
	log     logging.Logger
	strict  bool
	jobs    int
	open    func(path string) (*safetensors.Shard, error)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logging.Logger) Option {
	return func(e *Extractor) {
		if log != nil {
			e.log = log
		}
	}
}

// WithStrict makes a tensor listed in the index but absent from its shard a
// fatal error instead of a warning.
func WithStrict(strict bool) Option {
	return func(e *Extractor) {
		e.strict = strict
	}
}

// WithJobs sets how many shards are read concurrently. Values below 1 mean 1.
func WithJobs(jobs int) Option {
	return func(e *Extractor) {
		if jobs < 1 {
			jobs = 1
		}
		e.jobs = jobs
	}
}

// WithOpener replaces the function used to open a fetched shard file.
func WithOpener(open func(path string) (*safetensors.Shard, error)) Option {
	return func(e *Extractor) {
		if open != nil {
			e.open = open
		}
	}
}

// New returns an Extractor that fetches shard files from fetcher.
func New(fetcher source.Fetcher, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher: fetcher,
		log:     logging.Discard(),
		jobs:    1,
		open:    safetensors.Open,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Summary describes what an extraction kept and skipped.
type Summary struct {
	Prefix string
	// Total is the number of entries in the source index.
	Total int
	// Target is the number of entries carrying the prefix.
	Target int
	// Skipped is Total minus Target.
	Skipped int
	// Missing counts target entries absent from their shard.
	Missing      int
	MissingNames []string
	// ShardsTouched is the number of distinct shard files opened.
	ShardsTouched int
	Shards        []string
}

// Extracted returns the number of tensors that made it into the store.
func (s Summary) Extracted() int {
	return s.Target - s.Missing
}

// Result holds the extracted tensors. The tensor data references the source
// shards, which stay mapped until Close.
type Result struct {
	Store    *Store
	Summary  Summary
	Metadata map[string]string

	cache *shardCache
}

// Close releases the source shards. Tensors in Store must not be used after.
func (r *Result) Close() error {
	if r == nil || r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

// Extract copies every entry of idx carrying res.Prefix into a Store under its
// stripped name. Only shards holding at least one target entry are fetched,
// and each of them exactly once. Any shard failure aborts the extraction and
// releases what was opened.
func (e *Extractor) Extract(ctx context.Context, idx *index.Index, res prefix.Resolution) (*Result, error) {
	sel := idx.Filter(res.Prefix)
	shards := sel.Shards()
	groups := sel.ByShard()

	e.log.Infof("Total tensors: %d, %s: %d, skipped: %d",
		sel.Total(), describePrefix(res.Prefix), sel.Kept(), sel.Skipped())
	e.log.Infof("Reading %d of %d shard files", len(shards), len(idx.Shards()))

	cache := newShardCache(e.fetcher, e.open, e.log)
	store := NewStore()

	var mu sync.Mutex
	var missing []string

	process := func(ctx context.Context, name string) error {
		shard, err := cache.get(ctx, name)
		if err != nil {
			return err
		}
		log := e.log.WithField("shard", utils.SanitizeForLog(name))
		for _, entry := range groups[name] {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := shard.Lookup(entry.Original)
			if errors.Is(err, safetensors.ErrTensorNotFound) {
				if e.strict {
					return fmt.Errorf("strict mode: %w", err)
				}
				log.WithField("tensor", utils.SanitizeForLog(entry.Original)).
					Warn("Tensor listed in index but missing from its shard, skipping")
				mu.Lock()
				missing = append(missing, entry.Original)
				mu.Unlock()
				continue
			}
			if err != nil {
				return &ShardError{Shard: name, Err: err}
			}
			if err := store.Put(entry.Name, t); err != nil {
				return err
			}
		}
		log.Debugf("Extracted %d tensors", len(groups[name]))
		return nil
	}

	if err := e.run(ctx, shards, process); err != nil {
		if cerr := cache.Close(); cerr != nil {
			e.log.WithError(cerr).Warn("Failed to release shards")
		}
		return nil, err
	}

	sort.Strings(missing)
	metadata, err := carriedMetadata(ctx, cache, shards)
	if err != nil {
		cache.Close()
		return nil, err
	}

	return &Result{
		Store: store,
		Summary: Summary{
			Prefix:        res.Prefix,
			Total:         sel.Total(),
			Target:        sel.Kept(),
			Skipped:       sel.Skipped(),
			Missing:       len(missing),
			MissingNames:  missing,
			ShardsTouched: len(shards),
			Shards:        shards,
		},
		Metadata: metadata,
		cache:    cache,
	}, nil
}

// run calls fn for every shard, sequentially or on a bounded errgroup.
func (e *Extractor) run(ctx context.Context, shards []string, fn func(context.Context, string) error) error {
	if e.jobs <= 1 {
		for _, name := range shards {
			if err := fn(ctx, name); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.jobs)
	for _, name := range shards {
		g.Go(func() error {
			return fn(gctx, name)
		})
	}
	return g.Wait()
}

// carriedMetadata returns the "format" entry of the first shard, in sorted
// order, that has one.
func carriedMetadata(ctx context.Context, cache *shardCache, shards []string) (map[string]string, error) {
	for _, name := range shards {
		shard, err := cache.get(ctx, name)
		if err != nil {
			return nil, err
		}
		if format, ok := shard.Metadata()[formatKey]; ok {
			return map[string]string{formatKey: format}, nil
		}
	}
	return nil, nil
}

func describePrefix(p string) string {
	if p == "" {
		return "pass-through"
	}
	return p + "*"
}
