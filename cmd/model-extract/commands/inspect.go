package commands

import (
	"bytes"
	"fmt"

	"github.com/docker/model-extract/pkg/config"
	"github.com/docker/model-extract/pkg/distribution/index"
	"github.com/docker/model-extract/pkg/distribution/prefix"
	"github.com/docker/model-extract/pkg/distribution/source"
	"github.com/docker/model-extract/internal/utils"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		sourceDir  string
		configPath string
		forced     string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the naming conventions and shard plan of a checkpoint",
		Long: `Show the top-level tensor name prefixes of a checkpoint, the prefix that
extract would strip and which shard files it would read.

Nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := source.NewDir(sourceDir)
			if err != nil {
				return errors.Wrap(err, "open source")
			}
			idx, err := src.Index(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "load index")
			}

			cfg := config.Default()
			if configPath != "" {
				if cfg, err = config.Parse(configPath); err != nil {
					return err
				}
			}
			table, err := cfg.Table()
			if err != nil {
				return errors.Wrap(err, "build rule table")
			}

			fmt.Fprint(cmd.OutOrStdout(), segmentsTable(idx))

			var res prefix.Resolution
			if forced != "" {
				res, err = prefix.Force(idx.Names(), forced)
			} else {
				res, err = table.Resolve(idx.Names())
			}
			if err != nil {
				return errors.Wrap(err, "resolve prefix")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nPrefix: %s (%d tensors)\n\n", describeResolution(res), res.Matches)
			fmt.Fprint(cmd.OutOrStdout(), shardPlanTable(idx, res))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&sourceDir, "source", ".", "Checkpoint directory")
	flags.StringVar(&configPath, "config", "", "YAML configuration file")
	flags.StringVar(&forced, "prefix", "", "Plan for this prefix instead of detecting one")
	return cmd
}

func segmentsTable(idx *index.Index) string {
	var buf bytes.Buffer
	table := tablewriter.NewTable(&buf,
		tablewriter.WithHeader([]string{"PREFIX", "TENSORS"}),
	)
	for _, s := range prefix.Segments(idx.Names()) {
		table.Append([]string{utils.SanitizeForLog(s.Segment) + prefix.Separator + "*", fmt.Sprintf("%d", s.Count)})
	}
	table.Render()
	return buf.String()
}

func shardPlanTable(idx *index.Index, res prefix.Resolution) string {
	groups := idx.Filter(res.Prefix).ByShard()

	var buf bytes.Buffer
	table := tablewriter.NewTable(&buf,
		tablewriter.WithHeader([]string{"SHARD", "TARGET TENSORS", "ACTION"}),
	)
	read := 0
	for _, shard := range idx.Shards() {
		n := len(groups[shard])
		action := "skip"
		if n > 0 {
			action = "read"
			read++
		}
		table.Append([]string{utils.SanitizeForLog(shard), fmt.Sprintf("%d", n), action})
	}
	table.Render()
	fmt.Fprintf(&buf, "Reading %d of %d shards\n", read, len(idx.Shards()))
	return buf.String()
}
