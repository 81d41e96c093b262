package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/untoldecay/obsbridge/internal/changeset"
	"github.com/untoldecay/obsbridge/internal/dedupe"
	"github.com/untoldecay/obsbridge/internal/indexstore"
	"github.com/untoldecay/obsbridge/internal/links"
	"github.com/untoldecay/obsbridge/internal/safeio"
	"github.com/untoldecay/obsbridge/internal/types"
	"github.com/untoldecay/obsbridge/internal/ui"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find duplicate tasks within each side",
	Long: `Cluster same-title tasks within each universe and report the
duplicates that would be retired. Nothing is changed unless --apply is set.

Examples:
  obr dedupe           # report only
  obr dedupe --apply   # retire duplicates, keeping one survivor per cluster
`,
	Run: func(cmd *cobra.Command, args []string) {
		apply, _ := cmd.Flags().GetBool("apply")

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
		linkSet, err := links.NewStore(r.linksPath(), r.runID, r.logger).Load()
		if err != nil {
			fail(err)
		}

		if !apply {
			report := dedupe.Preview(mdIx, remIx, linkSet)
			if flagJSON {
				printJSON(cmd.OutOrStdout(), report)
				return
			}
			printDedupeReport(report)
			return
		}

		cs := changeset.New(r.runID)
		var status types.RunStatus
		dedupe.NewDeduper(r.gw, cs, r.vaultPaths(), r.logger).Run(ctx, mdIx, remIx, linkSet, &status)

		if !cs.Empty() {
			if err := cs.Save(r.changesetPath()); err != nil {
				fail(err)
			}
		}
		if err := indexstore.NewStore(r.mdIndexPath(), r.logger).Save(mdIx); err != nil {
			fail(err)
		}
		if err := indexstore.NewStore(r.remIndexPath(), r.logger).Save(remIx); err != nil {
			fail(err)
		}
		if err := r.saveGateway(); err != nil {
			fail(err)
		}
		fmt.Printf("retired %d duplicate(s), skipped %d\n", status.Applied, status.Skipped)
	},
}

func init() {
	dedupeCmd.Flags().Bool("apply", false, "retire the reported duplicates")
	rootCmd.AddCommand(dedupeCmd)
}

func printDedupeReport(report dedupe.Report) {
	if len(report.Clusters) == 0 {
		fmt.Println(ui.HintStyle.Render("no duplicates found"))
		return
	}
	for _, c := range report.Clusters {
		fmt.Println(ui.HeaderStyle.Render(c.Survivor.Title) +
			ui.HintStyle.Render(fmt.Sprintf("  (%d copies)", len(c.Tasks))))
		for _, t := range c.Tasks {
			marker := "retire"
			if t == c.Survivor {
				marker = "keep  "
			}
			fmt.Printf("  %s  %s  %s\n", marker, t.ID, describeLocation(t))
		}
	}
	sort.Slice(report.Skipped, func(i, j int) bool { return report.Skipped[i].ID < report.Skipped[j].ID })
	for _, t := range report.Skipped {
		fmt.Println(ui.WarningStyle.Render("  would skip " + t.ID + " (linked or list unavailable)"))
	}
}

func describeLocation(t *types.Task) string {
	if t.Origin == types.OriginMarkdown {
		return fmt.Sprintf("%s/%s:%d", t.Location.Vault, t.Location.FilePath, t.Location.Line)
	}
	return fmt.Sprintf("list %s item %s", t.Location.ListID, t.Location.ItemID)
}
