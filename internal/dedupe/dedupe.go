// Package dedupe finds duplicate tasks within each universe and retires all
// but one survivor per cluster. Deduplication never crosses the boundary:
// a markdown task and its reminders counterpart are a link, not a duplicate.
package dedupe

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/obsbridge/internal/changeset"
	"github.com/untoldecay/obsbridge/internal/gateway"
	"github.com/untoldecay/obsbridge/internal/types"
	"github.com/untoldecay/obsbridge/internal/vault"
)

// Cluster is one group of same-title tasks within a universe. Survivor is
// always a member of Tasks.
type Cluster struct {
	Key      string
	Tasks    []*types.Task
	Survivor *types.Task
}

// Duplicates returns the retirement candidates of a cluster, in id order.
func (c *Cluster) Duplicates() []*types.Task {
	var out []*types.Task
	for _, t := range c.Tasks {
		if t != c.Survivor {
			out = append(out, t)
		}
	}
	return out
}

// Deduper clusters and retires duplicates.
type Deduper struct {
	Gateway   gateway.Gateway
	Changeset *changeset.Changeset
	// VaultPaths maps vault name to absolute root for markdown retirements.
	VaultPaths map[string]string
	Logger     *slog.Logger
}

// NewDeduper wires a deduper for one run.
func NewDeduper(gw gateway.Gateway, cs *changeset.Changeset, vaultPaths map[string]string, logger *slog.Logger) *Deduper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduper{Gateway: gw, Changeset: cs, VaultPaths: vaultPaths, Logger: logger}
}

// normalizeTitle is the clustering key: lowercased with whitespace collapsed.
func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Clusters groups an index's tasks by normalized title. Reminders tasks are
// additionally scoped per list: the same title on two lists is two intents,
// not a duplicate. Single-member groups are dropped.
func Clusters(ix *types.Index, linked map[string]bool) []Cluster {
	groups := make(map[string][]*types.Task)
	for _, id := range ix.SortedIDs() {
		t := ix.Tasks[id]
		key := normalizeTitle(t.Title)
		if key == "" {
			continue
		}
		if t.Origin == types.OriginReminders {
			key = t.Location.ListID + "\x00" + key
		}
		groups[key] = append(groups[key], t)
	}

	keys := make([]string, 0, len(groups))
	for k, tasks := range groups {
		if len(tasks) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	clusters := make([]Cluster, 0, len(keys))
	for _, k := range keys {
		c := Cluster{Key: k, Tasks: groups[k]}
		c.Survivor = pickSurvivor(c.Tasks, linked)
		clusters = append(clusters, c)
	}
	return clusters
}

// pickSurvivor prefers a linked task, then the oldest, then the lowest id.
func pickSurvivor(tasks []*types.Task, linked map[string]bool) *types.Task {
	best := tasks[0]
	for _, t := range tasks[1:] {
		if better(t, best, linked) {
			best = t
		}
	}
	return best
}

func better(a, b *types.Task, linked map[string]bool) bool {
	la, lb := linked[a.ID], linked[b.ID]
	if la != lb {
		return la
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Run retires duplicates in both universes. A duplicate that is itself an
// active link endpoint is skipped and reported rather than orphaning the
// link; reminders items on opaque lists are never deleted.
func (d *Deduper) Run(ctx context.Context, md, rem *types.Index, linkSet []*types.Link, status *types.RunStatus) {
	linked := make(map[string]bool, 2*len(linkSet))
	for _, l := range linkSet {
		linked[l.MdID] = true
		linked[l.RemID] = true
	}

	d.retireMarkdown(ctx, md, linked, status)
	d.retireReminders(ctx, rem, linked, status)
}

func (d *Deduper) retireMarkdown(ctx context.Context, md *types.Index, linked map[string]bool, status *types.RunStatus) {
	type pending struct {
		task *types.Task
		edit vault.LineEdit
	}
	byFile := make(map[string][]pending)
	var files []string

	for _, c := range Clusters(md, linked) {
		for _, t := range c.Duplicates() {
			if linked[t.ID] {
				d.Logger.Warn("skipping linked duplicate", "id", t.ID)
				status.Skipped++
				continue
			}
			root, ok := d.VaultPaths[t.Location.Vault]
			if !ok {
				status.Semantic++
				continue
			}
			path := filepath.Join(root, t.Location.FilePath)
			text, ok := d.verifyLine(path, t)
			if !ok {
				status.Semantic++
				continue
			}
			if _, seen := byFile[path]; !seen {
				files = append(files, path)
			}
			byFile[path] = append(byFile[path], pending{
				task: t,
				edit: vault.LineEdit{Line: t.Location.Line, OldText: text, Delete: true},
			})
		}
	}

	sort.Strings(files)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			status.Skipped += len(byFile[path])
			continue
		}
		edits := make([]vault.LineEdit, 0, len(byFile[path]))
		for _, p := range byFile[path] {
			edits = append(edits, p.edit)
		}
		failed, err := vault.ApplyEdits(path, edits)
		if err != nil {
			d.Logger.Warn("markdown retirement failed", "path", path, "err", err)
			status.Transient += len(edits)
			status.Failed += len(edits)
			continue
		}
		failedLines := make(map[int]bool, len(failed))
		for _, e := range failed {
			failedLines[e.Line] = true
		}
		for _, p := range byFile[path] {
			if failedLines[p.edit.Line] {
				status.Semantic++
				continue
			}
			delete(md.Tasks, p.task.ID)
			md.Meta.TaskCount = len(md.Tasks)
			d.Changeset.AddRetirement(types.OriginMarkdown, p.task, p.edit.OldText)
			status.Applied++
		}
	}
}

// verifyLine checks that the task's recorded line still holds the task.
func (d *Deduper) verifyLine(path string, t *types.Task) (string, bool) {
	lines, err := vault.ReadLines(path)
	if err != nil || t.Location.Line < 1 || t.Location.Line > len(lines) {
		return "", false
	}
	return lines[t.Location.Line-1], true
}

func (d *Deduper) retireReminders(ctx context.Context, rem *types.Index, linked map[string]bool, status *types.RunStatus) {
	for _, c := range Clusters(rem, linked) {
		for _, t := range c.Duplicates() {
			if linked[t.ID] {
				d.Logger.Warn("skipping linked duplicate", "id", t.ID)
				status.Skipped++
				continue
			}
			if rem.ListOpaque(t.Location.ListID) {
				d.Logger.Warn("list had enumeration errors, not deleting", "list", t.Location.ListID, "id", t.ID)
				status.Skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				status.Skipped++
				continue
			}
			removed, err := d.Gateway.DeleteItem(ctx, t.Location.ItemID)
			if err != nil {
				d.Logger.Warn("reminders retirement failed", "item", t.Location.ItemID, "err", err)
				status.Transient++
				status.Failed++
				continue
			}
			if !removed {
				// Already gone on the platform side; drop it from the index.
				d.Logger.Debug("duplicate already absent", "item", t.Location.ItemID)
			}
			delete(rem.Tasks, t.ID)
			rem.Meta.TaskCount = len(rem.Tasks)
			d.Changeset.AddRetirement(types.OriginReminders, t, "")
			status.Applied++
		}
	}
}

// Report is a dry-run summary of what Run would retire.
type Report struct {
	Clusters []Cluster
	Retire   []*types.Task
	Skipped  []*types.Task // linked or opaque, left alone
	When     time.Time
}

// Preview computes the retirement report without mutating anything.
func Preview(md, rem *types.Index, linkSet []*types.Link) Report {
	linked := make(map[string]bool, 2*len(linkSet))
	for _, l := range linkSet {
		linked[l.MdID] = true
		linked[l.RemID] = true
	}
	rep := Report{When: time.Now().UTC()}
	for _, ix := range []*types.Index{md, rem} {
		for _, c := range Clusters(ix, linked) {
			rep.Clusters = append(rep.Clusters, c)
			for _, t := range c.Duplicates() {
				if linked[t.ID] || (t.Origin == types.OriginReminders && ix.ListOpaque(t.Location.ListID)) {
					rep.Skipped = append(rep.Skipped, t)
					continue
				}
				rep.Retire = append(rep.Retire, t)
			}
		}
	}
	return rep
}
