package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jengzang/region-insights-go/internal/pipeline"
)

func createAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the pipeline once and print a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			top, _ := cmd.Flags().GetInt("top")

			res, _, err := a.run(cmd.Context())
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), res, top)
		},
	}
	bindInputFlags(cmd)
	cmd.Flags().Int("top", 10, "number of top anomalies to print")
	return cmd
}

func printReport(out io.Writer, res *pipeline.Result, top int) error {
	d := res.Diagnostics
	fmt.Fprintf(out, "Run %s (%s)\n\n", res.RunID, res.CompletedAt.Sub(res.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(out, "Ingested:   %v\n", d.Ingested)
	fmt.Fprintf(out, "Skipped:    %v\n", d.Skipped)
	fmt.Fprintf(out, "Unresolved: %d states, %d districts (%d fuzzy, %d passthrough)\n\n",
		d.UnresolvedStates, d.UnresolvedDistricts, d.FuzzyMatches, d.PassthroughDistricts)

	fmt.Fprintf(out, "Rows: %d\n", res.Metrics.Len())
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\tREGIONS\tHOLDERS\tUPDATES\tUPDATE RATIO\tBIO COMPLIANCE\tUNRESOLVED HOLDERS")
	for _, p := range res.Metrics.Periods() {
		n := res.Metrics.National(p)
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.3f\t%.3f\t%d\n",
			p, n.Regions, n.TotalHolders, n.TotalUpdates, n.UpdateRatio, n.BiometricCompliance, n.UnresolvedHolders)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out)

	s := res.Anomalies.Summary()
	fmt.Fprintf(out, "Anomalies: %d critical, %d warning, %d normal\n", s.Critical, s.Warning, s.Normal)

	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\tSTATE\tDISTRICT\tSEVERITY\tSCORE\tRULE")
	for _, r := range res.Anomalies.Top(top) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.3f\t%s\n", r.Key.Period, r.Key.State, r.Key.District, r.Severity, r.Score, r.Rule)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, level := range slices.Sorted(maps.Keys(res.Coverage)) {
		m := res.Coverage[level]
		fmt.Fprintf(out, "\nCoverage %s: %d/%d (%.2f) %s\n", level, m.Matched, m.Total, m.Coverage, m.Presentation())
	}

	if len(res.Patterns) > 0 {
		fmt.Fprintln(out, "\nPatterns:")
		for _, name := range slices.Sorted(maps.Keys(res.Patterns)) {
			fmt.Fprintf(out, "  %s: %v\n", name, res.Patterns[name].Summary())
		}
	}
	return nil
}
