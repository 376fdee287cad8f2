package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/model-extract/pkg/distribution/index"
	"github.com/docker/model-extract/pkg/distribution/prefix"
	"github.com/docker/model-extract/internal/utils"
)

// previewNames is how many index names are logged before resolution.
const previewNames = 10

// IndexLoader provides the weight index of a checkpoint.
type IndexLoader interface {
	Index(ctx context.Context) (*index.Index, error)
}

// Request configures a full extraction run.
type Request struct {
	// Source provides the checkpoint index. Shards are fetched through the
	// Extractor's fetcher.
	Source IndexLoader
	// OutputDir receives the weights and index files.
	OutputDir string
	// Table resolves the prefix. Nil means prefix.DefaultTable().
	Table *prefix.Table
	// Prefix, when set, bypasses the table.
	Prefix string
	// Writer persists the store. Nil means the default file names.
	Writer *StoreWriter
	// DryRun stops after extraction and writes nothing.
	DryRun bool
}

// Report is the outcome of Run.
type Report struct {
	Resolution prefix.Resolution
	Summary    Summary
	// Output is nil for a dry run.
	Output *Output
}

// Run loads the index, resolves the prefix, extracts the target tensors and
// writes them to req.OutputDir. No output file exists when Run fails.
func (e *Extractor) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Source == nil {
		return nil, errors.New("no index source configured")
	}
	idx, err := req.Source.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	names := idx.Names()
	e.log.Debugf("Index has %d tensors in %d shards", len(names), len(idx.Shards()))
	for i, name := range names {
		if i == previewNames {
			break
		}
		e.log.Debugf("  %s", utils.SanitizeForLog(name))
	}

	res, err := resolve(names, req)
	if err != nil {
		return nil, err
	}
	e.log.WithField("kind", res.Kind.String()).Infof("Using prefix %q (%d tensors)", res.Prefix, res.Matches)

	result, err := e.Extract(ctx, idx, res)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := result.Close(); err != nil {
			e.log.WithError(err).Warn("Failed to release shards")
		}
	}()

	report := &Report{Resolution: res, Summary: result.Summary}
	if req.DryRun {
		return report, nil
	}

	writer := req.Writer
	if writer == nil {
		writer = NewStoreWriter("", "", e.log)
	}
	out, err := writer.Write(req.OutputDir, result.Store, result.Metadata)
	if err != nil {
		return nil, err
	}
	report.Output = out
	e.log.Infof("Saved %d tensors to %s", out.Tensors, out.WeightsPath)
	return report, nil
}

func resolve(names []string, req Request) (prefix.Resolution, error) {
	if req.Prefix != "" {
		return prefix.Force(names, req.Prefix)
	}
	table := req.Table
	if table == nil {
		table = prefix.DefaultTable()
	}
	return table.Resolve(names)
}
