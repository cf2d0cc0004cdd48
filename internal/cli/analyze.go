package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clarityops/clarity/internal/render"
)

var (
	analyzeSources  []string
	analyzeDispatch bool
	analyzeCatalog  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis over the declared log sources",
	Long: `Analyze parses every declared source, merges the events into a single
timeline, diagnoses the incident and selects one remediation command.
Unreadable sources and an unreachable oracle degrade the report instead of
failing the run.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringArrayVar(&analyzeSources, "source", nil, "log source as path[:format], repeatable (formats: auto, ndjson, csv, text)")
	analyzeCmd.Flags().BoolVar(&analyzeDispatch, "dispatch", false, "submit the selected command to the tool server")
	analyzeCmd.Flags().StringVar(&analyzeCatalog, "catalog", "", "path to a YAML remediation catalog")
	_ = analyzeCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	sources, err := parseSourceArgs(analyzeSources)
	if err != nil {
		return err
	}

	oracleClient, closeOracle := newOracleClient()
	defer closeOracle()

	orch, cleanup, err := newOrchestrator(analyzeCatalog, analyzeDispatch, oracleClient)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := orch.Analyze(cmd.Context(), sources)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), render.Report(report))
	return nil
}
