package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/model-extract/pkg/config"
	"github.com/docker/model-extract/pkg/distribution/auxfiles"
	"github.com/docker/model-extract/pkg/distribution/extract"
	"github.com/docker/model-extract/pkg/distribution/source"
	"github.com/docker/model-extract/internal/utils"
	"github.com/docker/model-extract/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const defaultOutputDir = "./text-only"

type extractOptions struct {
	source      string
	configPath  string
	prefix      string
	metricsFile string
	strict      bool
	dryRun      bool
	noAux       bool
	jobs        int
}

func newExtractCmd() *cobra.Command {
	var opts extractOptions

	cmd := &cobra.Command{
		Use:   "extract [OUTPUT_DIR]",
		Short: "Extract the text decoder into OUTPUT_DIR",
		Long: `Extract the tensors of one sub-model into OUTPUT_DIR (default ` + defaultOutputDir + `).

The prefix is detected from the checkpoint's tensor names unless --prefix is
given. The output holds model.safetensors, model.safetensors.index.json, a
config.json narrowed to the text decoder and the tokenizer files.

Examples:
  model-extract extract --source ./gemma-3-4b-it
  model-extract extract --source ./ckpt --prefix language_model. --jobs 4 ./out`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputDir := defaultOutputDir
			if len(args) == 1 {
				outputDir = args[0]
			}
			return runExtract(cmd, opts, outputDir)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.source, "source", ".", "Checkpoint directory")
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.prefix, "prefix", "", "Strip this prefix instead of detecting one")
	flags.BoolVar(&opts.strict, "strict", false, "Fail when an indexed tensor is missing from its shard")
	flags.IntVarP(&opts.jobs, "jobs", "j", 1, "Number of shards read in parallel")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Resolve and read, but write nothing")
	flags.BoolVar(&opts.noAux, "no-aux", false, "Do not copy tokenizer and config files")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")

	return cmd
}

// loadConfig reads the optional config file and applies explicitly set flags on top.
func loadConfig(cmd *cobra.Command, opts extractOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Parse(opts.configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("source") || opts.configPath == "" {
		cfg.Source = opts.source
	}
	if flags.Changed("strict") {
		cfg.Strict = opts.strict
	}
	if flags.Changed("jobs") {
		cfg.Jobs = opts.jobs
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func runExtract(cmd *cobra.Command, opts extractOptions, outputDir string) error {
	start := time.Now()
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	src, err := source.NewDir(cfg.Source)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	table, err := cfg.Table()
	if err != nil {
		return errors.Wrap(err, "build rule table")
	}

	logger := libraryLogger()
	extractor := extract.New(src,
		extract.WithLogger(logger),
		extract.WithStrict(cfg.Strict),
		extract.WithJobs(cfg.Jobs),
	)
	report, err := extractor.Run(ctx, extract.Request{
		Source:    src,
		OutputDir: outputDir,
		Table:     table,
		Prefix:    opts.prefix,
		Writer:    extract.NewStoreWriter(cfg.Output.Weights, cfg.Output.Index, logger),
		DryRun:    opts.dryRun,
	})
	if err != nil {
		return errors.Wrap(err, "extraction failed")
	}

	if !opts.dryRun && !opts.noAux {
		if err := writeAuxFiles(ctx, src, outputDir, cfg); err != nil {
			return errors.Wrap(err, "copy auxiliary files")
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), reportTable(report))
	if report.Summary.Missing > 0 {
		printMissingWarning(cmd.ErrOrStderr(), report.Summary)
	}

	if opts.metricsFile != "" {
		recorder := metrics.NewRecorder()
		recorder.Record(report, time.Since(start))
		if err := recorder.WriteTextfile(opts.metricsFile); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	return nil
}

func writeAuxFiles(ctx context.Context, src *source.Dir, outputDir string, cfg config.Config) error {
	names := cfg.AuxFiles
	if cfg.TextConfig.Enabled {
		derived, err := auxfiles.WriteTextConfig(ctx, src, outputDir, cfg.TextConfig.Overrides)
		switch {
		case errors.Is(err, source.ErrNotFound):
			log.Warnf("No %s in source, skipping", auxfiles.ConfigFileName)
		case err != nil:
			return err
		case derived:
			log.Infof("Derived text decoder %s", auxfiles.ConfigFileName)
		default:
			log.Infof("Copied %s unchanged (no text_config)", auxfiles.ConfigFileName)
		}
	} else {
		names = append([]string{auxfiles.ConfigFileName}, names...)
	}

	res, err := auxfiles.Copy(ctx, src, outputDir, names)
	if err != nil {
		return err
	}
	if len(res.Copied) > 0 {
		log.Infof("Copied %s", utils.SanitizeNames(res.Copied))
	}
	if len(res.Missing) > 0 {
		log.Debugf("Not in source: %s", utils.SanitizeNames(res.Missing))
	}
	if len(res.Rejected) > 0 {
		log.Warnf("Refusing to copy %s", utils.SanitizeNames(res.Rejected))
	}
	return nil
}
