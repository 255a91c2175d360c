package cli

import (
	"github.com/mev-engine/sandwich-bot/internal/tui"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start terminal-based monitoring interface",
	Long: `Launch an interactive terminal-based monitoring dashboard showing the
strategy loop's status, current block, pending and promising transaction
counts, and connected websocket clients. Press 'r' to refresh, 'p' to pause,
'c' to resume, 'q' to quit.`,
	RunE: runMonitor,
}

var (
	refreshRate int
	compactMode bool
)

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().IntVarP(&refreshRate, "refresh", "r", 1000, "refresh rate in milliseconds")
	monitorCmd.Flags().BoolVarP(&compactMode, "compact", "c", false, "compact display mode (ignored: the dashboard has a single layout)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	config := tui.Config{
		RefreshRate: refreshRate,
		CompactMode: compactMode,
		Debug:       cmd.Flag("debug").Value.String() == "true",
	}

	return tui.StartMonitor(config)
}
