package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/obsbridge/internal/indexstore"
	"github.com/untoldecay/obsbridge/internal/safeio"
	"github.com/untoldecay/obsbridge/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild and persist the task indexes",
	Long: `Rescan the vaults and reminders lists and persist fresh indexes
without reconciling anything.

Examples:
  obr index          # refresh both sides
  obr index --md     # refresh only the markdown index
  obr index --rem    # refresh only the reminders index
`,
	Run: func(cmd *cobra.Command, args []string) {
		mdOnly, _ := cmd.Flags().GetBool("md")
		remOnly, _ := cmd.Flags().GetBool("rem")
		if !mdOnly && !remOnly {
			mdOnly, remOnly = true, true
		}

		r, err := newRuntime()
		if err != nil {
			fail(err)
		}
		ctx := cmd.Context()
		lock, err := safeio.AcquireLock(ctx, r.lockPath(), r.cfg.LockTimeout)
		if err != nil {
			fail(err)
		}
		defer lock.Unlock()

		mdIx, remIx, err := scanBoth(ctx, r)
		if err != nil {
			fail(err)
		}
		if mdOnly {
			if err := indexstore.NewStore(r.mdIndexPath(), r.logger).Save(mdIx); err != nil {
				fail(err)
			}
			fmt.Printf("markdown: %d task(s) across %d file(s)\n", mdIx.Meta.TaskCount, mdIx.Meta.SourceCount)
		}
		if remOnly {
			if err := indexstore.NewStore(r.remIndexPath(), r.logger).Save(remIx); err != nil {
				fail(err)
			}
			fmt.Printf("reminders: %d task(s) across %d list(s)\n", remIx.Meta.TaskCount, remIx.Meta.SourceCount)
			for list, msg := range remIx.Meta.ErroredLists {
				fmt.Println(ui.WarningStyle.Render("  list unavailable: " + list + ": " + msg))
			}
		}
	},
}

func init() {
	indexCmd.Flags().Bool("md", false, "refresh only the markdown index")
	indexCmd.Flags().Bool("rem", false, "refresh only the reminders index")
	rootCmd.AddCommand(indexCmd)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("error: "+err.Error()))
	os.Exit(1)
}
