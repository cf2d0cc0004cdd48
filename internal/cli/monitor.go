package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clarityops/clarity/internal/models"
	"github.com/clarityops/clarity/internal/monitor"
	"github.com/clarityops/clarity/internal/parser"
	"github.com/clarityops/clarity/internal/render"
)

var (
	monitorSource   string
	monitorInterval time.Duration
	monitorWindow   time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll one log source and alert on error-ratio trends",
	Long: `Monitor re-reads the source at a fixed cadence, appends newly seen
events to a cumulative timeline and fires debounced alerts when the windowed
error ratio crosses the rise threshold. Stop it with Ctrl-C; a session
summary is printed on the way out.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorSource, "source", "", "log source as path[:format]")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 30*time.Second, "polling cadence")
	monitorCmd.Flags().DurationVar(&monitorWindow, "window", 5*time.Minute, "trailing metric window, 0 for the whole timeline")
	_ = monitorCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	sources, err := parseSourceArgs([]string{monitorSource})
	if err != nil {
		return err
	}

	interval := monitorInterval
	if !cmd.Flags().Changed("interval") && deps.Config.MonitorInterval > 0 {
		interval = deps.Config.MonitorInterval
	}
	window := monitorWindow
	if !cmd.Flags().Changed("window") {
		window = deps.Config.WindowDuration
	}

	out := cmd.OutOrStdout()
	mon := monitor.New(monitor.Options{
		Source:   sources[0],
		Interval: interval,
		Window:   window,
		Rise:     deps.Config.RiseThreshold,
		Recovery: deps.Config.RecoveryThreshold,
		MinDelta: deps.Config.MinRiseDelta,
		OnAlert: func(a models.Alert) {
			fmt.Fprintln(out, render.Alert(a))
		},
	}, parser.New(deps.Logger), deps.Logger, deps.Metrics, deps.Audit)

	summary, err := mon.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintln(out, render.MonitorSummary(summary))
	return nil
}
