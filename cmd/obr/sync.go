package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/obsbridge/internal/changeset"
	"github.com/untoldecay/obsbridge/internal/dates"
	"github.com/untoldecay/obsbridge/internal/dedupe"
	"github.com/untoldecay/obsbridge/internal/engine"
	"github.com/untoldecay/obsbridge/internal/indexstore"
	"github.com/untoldecay/obsbridge/internal/links"
	"github.com/untoldecay/obsbridge/internal/match"
	"github.com/untoldecay/obsbridge/internal/reminders"
	"github.com/untoldecay/obsbridge/internal/safeio"
	"github.com/untoldecay/obsbridge/internal/types"
	"github.com/untoldecay/obsbridge/internal/ui"
	"github.com/untoldecay/obsbridge/internal/vault"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile vaults with reminders lists",
	Long: `Run one full reconcile: index both sides, rebuild the link set,
plan field-level updates, apply them, and create counterparts for unlinked
tasks up to the configured caps.

Examples:
  obr sync                      # full run
  obr sync --dry-run            # show the plan, change nothing
  obr sync --prune-duplicates   # also retire same-title duplicates
  obr sync --no-create          # reconcile linked pairs only
`,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		prune, _ := cmd.Flags().GetBool("prune-duplicates")
		noCreate, _ := cmd.Flags().GetBool("no-create")
		writeAnchors, _ := cmd.Flags().GetBool("write-anchors")

		r, err := newRuntime()
		if err != nil {
			fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("error: "+err.Error()))
			os.Exit(1)
		}
		disposition, err := runSync(cmd.Context(), r, syncOptions{
			dryRun:       dryRun,
			prune:        prune,
			noCreate:     noCreate,
			writeAnchors: writeAnchors,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("error: "+err.Error()))
			os.Exit(1)
		}
		switch disposition {
		case types.RunClean:
		case types.RunPartial:
			os.Exit(2)
		default:
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().Bool("dry-run", false, "plan only; mutate nothing")
	syncCmd.Flags().Bool("prune-duplicates", false, "retire same-title duplicates after reconciling")
	syncCmd.Flags().Bool("no-create", false, "skip counterpart creation")
	syncCmd.Flags().Bool("write-anchors", true, "append block anchors to markdown tasks when their counterpart is created")
	rootCmd.AddCommand(syncCmd)
}

type syncOptions struct {
	dryRun       bool
	prune        bool
	noCreate     bool
	writeAnchors bool
}

func runSync(ctx context.Context, r *runtime, opts syncOptions) (types.Disposition, error) {
	lock, err := safeio.AcquireLock(ctx, r.lockPath(), r.cfg.LockTimeout)
	if err != nil {
		return types.RunFailed, err
	}
	defer lock.Unlock()

	mdIx, remIx, err := scanBoth(ctx, r)
	if err != nil {
		return types.RunFailed, err
	}

	linkStore := links.NewStore(r.linksPath(), r.runID, r.logger)
	existing, err := linkStore.Load()
	if err != nil {
		return types.RunFailed, err
	}

	algo := match.AlgorithmGreedy
	if r.cfg.UseHungarian {
		algo = match.AlgorithmHungarian
	}
	matcher := match.NewMatcher(r.cfg.MinScore, r.cfg.DaysTolerance, r.cfg.IncludeCompletedInMatching, algo, r.logger)
	linkSet := matcher.Rebuild(mdIx, remIx, existing, time.Now().UTC())
	newLinkCount := len(linkSet) - surviving(existing, linkSet)

	plan := engine.BuildPlan(mdIx, remIx, linkSet)
	cs := changeset.New(r.runID)
	var status types.RunStatus

	if opts.dryRun {
		printPlan(mdIx, plan)
		printSummary(r, opts, mdIx, remIx, linkSet, newLinkCount, plan, status, 0, 0)
		return types.RunClean, nil
	}

	applier := engine.NewApplier(r.gw, cs, r.vaultPaths(), r.cfg.GatewayTimeout, r.logger)
	status.Merge(applier.Apply(ctx, plan, mdIx, remIx, linkSet))

	created := 0
	if !opts.noCreate {
		creator := engine.NewCreator(r.gw, cs, r.vaultPaths(), r.createOptions(opts.writeAnchors), r.logger)
		before := status.Applied
		formed := creator.Run(ctx, mdIx, remIx, linkSet, &status)
		linkSet = append(linkSet, formed...)
		created = status.Applied - before
	}

	retired := 0
	if opts.prune {
		deduper := dedupe.NewDeduper(r.gw, cs, r.vaultPaths(), r.logger)
		before := status.Applied
		deduper.Run(ctx, mdIx, remIx, linkSet, &status)
		retired = status.Applied - before
	}

	if err := persistRun(r, mdIx, remIx, linkSet, linkStore, cs, algo); err != nil {
		return types.RunFailed, err
	}

	printSummary(r, opts, mdIx, remIx, linkSet, newLinkCount, plan, status, created, retired)
	r.logger.Info("run finished", "run_id", r.runID, "disposition", status.Disposition(),
		"applied", status.Applied, "skipped", status.Skipped, "failed", status.Failed)
	return status.Disposition(), nil
}

// scanBoth indexes the vaults and the reminders lists for this run.
func scanBoth(ctx context.Context, r *runtime) (*types.Index, *types.Index, error) {
	var cache *vault.Cache
	if r.cfg.CacheEnabled {
		c, err := vault.OpenCache(r.cachePath())
		if err != nil {
			r.logger.Warn("parse cache unavailable, scanning cold", "err", err)
		} else {
			cache = c
			defer c.Close()
		}
	}

	mdIx, err := vault.NewIndexer(r.cfg.Vaults, r.cfg.ExcludeDirs, cache, r.logger).Scan(ctx, r.runID)
	if err != nil {
		return nil, nil, fmt.Errorf("indexing vaults: %w", err)
	}
	remIx, err := reminders.NewIndexer(r.gw, r.cfg.ListIDs(), r.logger).Scan(ctx, r.runID)
	if err != nil {
		return nil, nil, fmt.Errorf("indexing reminders: %w", err)
	}
	return mdIx, remIx, nil
}

func (r *runtime) createOptions(writeAnchors bool) engine.CreateOptions {
	listID := r.cfg.DefaultCreationList
	if listID == "" && len(r.cfg.Lists) > 0 {
		listID = r.cfg.Lists[0].Identifier
	}
	inboxVault := r.cfg.DefaultCreationVault
	if inboxVault == "" && len(r.cfg.Vaults) > 0 {
		inboxVault = r.cfg.Vaults[0].Name
	}
	// A {date} token in the inbox note name yields a per-day inbox.
	note := strings.ReplaceAll(r.cfg.InboxNote, "{date}", dates.Today())
	return engine.CreateOptions{
		MdToRemCap:       r.cfg.CreationCaps.MdToRem,
		RemToMdCap:       r.cfg.CreationCaps.RemToMd,
		MaxAgeDays:       r.cfg.CreationAgeDays,
		WriteBackAnchors: writeAnchors,
		DefaultListID:    listID,
		InboxVault:       inboxVault,
		InboxNote:        note,
	}
}

// persistRun writes every artifact of the run. The changeset is written
// first: if it cannot be recorded there is no rollback path, so nothing else
// should claim durability either.
func persistRun(r *runtime, mdIx, remIx *types.Index, linkSet []*types.Link, linkStore *links.Store, cs *changeset.Changeset, algo match.Algorithm) error {
	if !cs.Empty() {
		if err := cs.Save(r.changesetPath()); err != nil {
			return err
		}
	}
	sort.Slice(linkSet, func(i, j int) bool {
		if linkSet[i].MdID != linkSet[j].MdID {
			return linkSet[i].MdID < linkSet[j].MdID
		}
		return linkSet[i].RemID < linkSet[j].RemID
	})
	if err := linkStore.Save(linkSet, r.cfg.MinScore, algo); err != nil {
		return err
	}
	if err := indexstore.NewStore(r.mdIndexPath(), r.logger).Save(mdIx); err != nil {
		return err
	}
	if err := indexstore.NewStore(r.remIndexPath(), r.logger).Save(remIx); err != nil {
		return err
	}
	return r.saveGateway()
}

// surviving counts how many of the prior links are still in the set.
func surviving(prior, current []*types.Link) int {
	keys := make(map[string]bool, len(prior))
	for _, l := range prior {
		keys[l.MdID+"\x00"+l.RemID] = true
	}
	n := 0
	for _, l := range current {
		if keys[l.MdID+"\x00"+l.RemID] {
			n++
		}
	}
	return n
}

func printPlan(mdIx *types.Index, plan *engine.Plan) {
	rows := make([]ui.PlanRow, 0, len(plan.Updates))
	for _, u := range plan.Updates {
		title := u.MdID
		if t := mdIx.Get(u.MdID); t != nil {
			title = t.Title
		}
		rows = append(rows, ui.PlanRow{
			Field:     string(u.Field),
			Direction: string(u.Direction),
			Old:       u.Old,
			New:       u.New,
			Title:     title,
		})
	}
	ui.RenderPlan(os.Stdout, rows)
}

func printSummary(r *runtime, opts syncOptions, mdIx, remIx *types.Index, linkSet []*types.Link, newLinks int, plan *engine.Plan, status types.RunStatus, created, retired int) {
	var errored []string
	for list := range remIx.Meta.ErroredLists {
		errored = append(errored, list)
	}
	sort.Strings(errored)

	s := ui.RunSummary{
		RunID:        r.runID,
		DryRun:       opts.dryRun,
		MdTasks:      mdIx.Meta.TaskCount,
		RemTasks:     remIx.Meta.TaskCount,
		Links:        len(linkSet),
		NewLinks:     newLinks,
		Planned:      len(plan.Updates),
		Applied:      status.Applied,
		Created:      created,
		Retired:      retired,
		Skipped:      status.Skipped,
		Failed:       status.Failed,
		Disposition:  string(status.Disposition()),
		ErroredLists: errored,
	}
	if flagJSON {
		printJSON(os.Stdout, s)
		return
	}
	ui.RenderRunSummary(os.Stdout, s)
}
