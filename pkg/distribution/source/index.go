package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/docker/model-extract/pkg/distribution/index"
	"github.com/docker/model-extract/pkg/distribution/safetensors"
)

// SingleFileName is the weights file of an unsharded checkpoint.
const SingleFileName = "model.safetensors"

var (
	// shardPattern matches safetensors shard filenames like "model-00001-of-00003.safetensors"
	shardPattern = regexp.MustCompile(`^(.+)-(\d{5})-of-(\d{5})\.safetensors$`)
)

// Index loads the checkpoint's weight index. When the source has no index
// file, one is synthesized from the shard headers: first from a single
// model.safetensors, then from a complete "<name>-NNNNN-of-NNNNN.safetensors"
// shard set.
func (d *Dir) Index(ctx context.Context) (*index.Index, error) {
	path, err := d.Fetch(ctx, index.DefaultFileName)
	if err == nil {
		return index.Load(path)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if path, err := d.Fetch(ctx, SingleFileName); err == nil {
		return synthesize(ctx, []string{path})
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	first, err := filepath.Glob(filepath.Join(d.root, "*-00001-of-*.safetensors"))
	if err != nil {
		return nil, fmt.Errorf("glob shards: %w", err)
	}
	if len(first) == 0 {
		return nil, fmt.Errorf("%w: neither %s nor %s present in %s",
			ErrNotFound, index.DefaultFileName, SingleFileName, d.root)
	}
	sort.Strings(first)
	shards, err := DiscoverShards(first[0])
	if err != nil {
		return nil, err
	}
	return synthesize(ctx, shards)
}

// DiscoverShards finds all shard files of the set path belongs to.
// Shards follow the pattern <name>-00001-of-00003.safetensors; a path that does
// not match is returned on its own.
func DiscoverShards(path string) ([]string, error) {
	baseName := filepath.Base(path)
	matches := shardPattern.FindStringSubmatch(baseName)
	if len(matches) != 4 {
		return []string{path}, nil
	}

	prefix := matches[1]
	totalShards, err := strconv.Atoi(matches[3])
	if err != nil {
		return nil, fmt.Errorf("parse shard count: %w", err)
	}

	dir := filepath.Dir(path)
	var shards []string
	for i := 1; i <= totalShards; i++ {
		shardPath := filepath.Join(dir, fmt.Sprintf("%s-%05d-of-%05d.safetensors", prefix, i, totalShards))
		if _, err := os.Stat(shardPath); err == nil {
			shards = append(shards, shardPath)
		}
	}
	if len(shards) != totalShards {
		return nil, fmt.Errorf("incomplete shard set: found %d of %d shards for %s", len(shards), totalShards, baseName)
	}
	return shards, nil
}

// synthesize builds an index from the headers of the given shard files.
func synthesize(ctx context.Context, paths []string) (*index.Index, error) {
	var entries []index.Entry
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		shard, err := safetensors.Open(path)
		if err != nil {
			return nil, err
		}
		for _, name := range shard.Names() {
			entries = append(entries, index.Entry{Name: name, Shard: filepath.Base(path)})
		}
		if err := shard.Close(); err != nil {
			return nil, err
		}
	}
	return index.New(entries, nil)
}
