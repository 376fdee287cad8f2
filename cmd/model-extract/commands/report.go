package commands

import (
	"bytes"
	"fmt"
	"io"

	"github.com/docker/go-units"
	"github.com/docker/model-extract/pkg/distribution/extract"
	"github.com/docker/model-extract/pkg/distribution/prefix"
	"github.com/docker/model-extract/internal/utils"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// maxListedMissing caps the missing tensor names printed in the warning.
const maxListedMissing = 10

func formatSize(n int64) string {
	return units.CustomSize("%.2f%s", float64(n), 1000.0, []string{"B", "kB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"})
}

func describeResolution(res prefix.Resolution) string {
	switch res.Kind {
	case prefix.KindPassThrough:
		return fmt.Sprintf("none (already flat, matched %q)", res.Source)
	case prefix.KindForced:
		return fmt.Sprintf("%s (forced)", res.Prefix)
	}
	return res.Prefix
}

func reportTable(report *extract.Report) string {
	var buf bytes.Buffer
	table := tablewriter.NewTable(&buf,
		tablewriter.WithHeader([]string{"ITEM", "VALUE"}),
	)

	s := report.Summary
	table.Append([]string{"Prefix", describeResolution(report.Resolution)})
	table.Append([]string{"Tensors in index", fmt.Sprintf("%d", s.Total)})
	table.Append([]string{"Extracted", fmt.Sprintf("%d", s.Extracted())})
	table.Append([]string{"Skipped", fmt.Sprintf("%d", s.Skipped)})
	if s.Missing > 0 {
		table.Append([]string{"Missing", fmt.Sprintf("%d", s.Missing)})
	}
	table.Append([]string{"Shards read", fmt.Sprintf("%d", s.ShardsTouched)})

	if out := report.Output; out != nil {
		table.Append([]string{"Weights", out.WeightsPath})
		table.Append([]string{"Weights size", formatSize(out.WeightsSize)})
		table.Append([]string{"Tensor bytes", formatSize(out.TotalSize)})
		table.Append([]string{"Index", out.IndexPath})
		table.Append([]string{"Digest", out.Digest.String()})
	} else {
		table.Append([]string{"Output", "none (dry run)"})
	}

	table.Render()
	return buf.String()
}

// printMissingWarning makes tolerated missing tensors hard to overlook.
func printMissingWarning(w io.Writer, s extract.Summary) {
	warn := color.New(color.FgYellow, color.Bold)
	warn.Fprintf(w, "WARNING: %d tensor(s) listed in the index were not found in their shard and were skipped.\n", s.Missing)
	warn.Fprintln(w, "The extracted model is probably incomplete. Re-run with --strict to fail instead.")

	names := s.MissingNames
	more := 0
	if len(names) > maxListedMissing {
		more = len(names) - maxListedMissing
		names = names[:maxListedMissing]
	}
	for _, name := range names {
		fmt.Fprintf(w, "  - %s\n", utils.SanitizeForLog(name))
	}
	if more > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", more)
	}
}
