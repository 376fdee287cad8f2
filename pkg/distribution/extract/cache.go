package extract

import (
	"context"
	"errors"
	"sync"

	"github.com/docker/model-extract/pkg/distribution/safetensors"
	"github.com/docker/model-extract/pkg/distribution/source"
	"github.com/docker/model-extract/pkg/logging"
)

// shardCache fetches and opens each shard file at most once per run. The first
// caller for a shard does the work; concurrent callers wait for it and share
// the handle or the error.
type shardCache struct {
	fetcher source.Fetcher
	open    func(path string) (*safetensors.Shard, error)
	log     logging.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	opened  []*safetensors.Shard
}

type cacheEntry struct {
	once  sync.Once
	shard *safetensors.Shard
	err   error
}

func newShardCache(fetcher source.Fetcher, open func(string) (*safetensors.Shard, error), log logging.Logger) *shardCache {
	return &shardCache{
		fetcher: fetcher,
		open:    open,
		log:     log,
		entries: make(map[string]*cacheEntry),
	}
}

func (c *shardCache) get(ctx context.Context, name string) (*safetensors.Shard, error) {
	c.mu.Lock()
	e, ok := c.entries[name]
	if !ok {
		e = &cacheEntry{}
		c.entries[name] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		path, err := c.fetcher.Fetch(ctx, name)
		if err != nil {
			e.err = &ShardError{Shard: name, Err: err}
			return
		}
		shard, err := c.open(path)
		if err != nil {
			e.err = &ShardError{Shard: name, Err: err}
			return
		}
		c.log.WithField("shard", name).Debugf("Opened shard with %d tensors", len(shard.Names()))

		c.mu.Lock()
		c.opened = append(c.opened, shard)
		c.mu.Unlock()
		e.shard = shard
	})
	return e.shard, e.err
}

// Close releases every opened shard.
func (c *shardCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, shard := range c.opened {
		if err := shard.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.opened = nil
	return errors.Join(errs...)
}
