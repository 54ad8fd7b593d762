package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Import analyzer packages to register them
	_ "github.com/jengzang/region-insights-go/internal/analysis/behavior"
	_ "github.com/jengzang/region-insights-go/internal/analysis/cluster"
	_ "github.com/jengzang/region-insights-go/internal/analysis/cohort"
	_ "github.com/jengzang/region-insights-go/internal/analysis/temporal"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "regionctl",
		Short: "Regional enrolment reconciliation and anomaly detection",
		Long: `Reconciles enrolment, demographic and biometric update extracts into one
canonical region table, derives KPIs, flags anomalous districts and serves the results.
Configuration is read from the environment; flags override it.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(createAnalyzeCmd())
	rootCmd.AddCommand(createServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
