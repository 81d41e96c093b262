// Command obr synchronizes markdown task lines with a reminders service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/obsbridge/internal/ui"
)

var (
	flagConfig      string
	flagJSON        bool
	flagVerbose     bool
	flagFakeGateway bool
)

var rootCmd = &cobra.Command{
	Use:   "obr",
	Short: "Sync markdown task lines with a reminders service",
	Long: `obr reconciles inline task lines in markdown vaults with a platform
reminders service. It indexes both sides, matches tasks across the boundary
by title, due date, and status, then applies field-level updates in whichever
direction changed more recently.

All state (indexes, links, changesets, logs) lives under the configured
state_dir. Every run is stamped with a run id, and every mutation the run
applies is recorded in that run's changeset.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: discovered .obsbridge/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagFakeGateway, "fake-gateway", true, "use the file-backed in-memory gateway")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}
