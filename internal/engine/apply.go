package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/untoldecay/obsbridge/internal/changeset"
	"github.com/untoldecay/obsbridge/internal/dates"
	"github.com/untoldecay/obsbridge/internal/gateway"
	"github.com/untoldecay/obsbridge/internal/reminders"
	"github.com/untoldecay/obsbridge/internal/taskline"
	"github.com/untoldecay/obsbridge/internal/types"
	"github.com/untoldecay/obsbridge/internal/vault"
)

// Applier drives a plan against the markdown files and the gateway.
type Applier struct {
	Gateway    gateway.Gateway
	Changeset  *changeset.Changeset
	VaultPaths map[string]string // vault name -> absolute root
	Timeout    time.Duration     // per gateway call
	Logger     *slog.Logger
	Now        func() time.Time
}

// NewApplier wires an applier for one run.
func NewApplier(gw gateway.Gateway, cs *changeset.Changeset, vaultPaths map[string]string, timeout time.Duration, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		Gateway:    gw,
		Changeset:  cs,
		VaultPaths: vaultPaths,
		Timeout:    timeout,
		Logger:     logger,
		Now:        time.Now,
	}
}

// Apply executes the plan. Failures are per-field: one link's trouble never
// blocks another, and partial success degrades the run instead of failing
// it. Links whose fields applied get last_synced_at and
// last_sync_direction refreshed, and the in-memory task records are updated
// so an immediate re-plan is empty.
func (a *Applier) Apply(ctx context.Context, plan *Plan, md, rem *types.Index, linkSet []*types.Link) types.RunStatus {
	var status types.RunStatus
	linkByKey := make(map[string]*types.Link, len(linkSet))
	for _, l := range linkSet {
		linkByKey[l.MdID+"\x00"+l.RemID] = l
	}

	applied := make(map[string][]types.SyncDirection) // link key -> directions that landed

	remByItem := groupRemUpdates(plan)
	for _, g := range remByItem {
		if err := ctx.Err(); err != nil {
			status.Skipped += len(g.updates)
			continue
		}
		a.applyRemGroup(ctx, g, rem, &status, applied)
	}

	a.applyMdUpdates(ctx, groupMdUpdates(plan), md, &status, applied)

	now := a.Now().UTC()
	for key, dirs := range applied {
		l := linkByKey[key]
		if l == nil {
			continue
		}
		l.LastSyncedAt = now
		l.LastDirection = mergeDirections(dirs)
	}
	return status
}

func mergeDirections(dirs []types.SyncDirection) types.SyncDirection {
	var toRem, toMd bool
	for _, d := range dirs {
		switch d {
		case types.DirectionMdToRem:
			toRem = true
		case types.DirectionRemToMd:
			toMd = true
		}
	}
	switch {
	case toRem && toMd:
		return types.DirectionBoth
	case toRem:
		return types.DirectionMdToRem
	case toMd:
		return types.DirectionRemToMd
	}
	return types.DirectionNone
}

// remGroup collects every md→rem update bound for one reminders item.
type remGroup struct {
	mdID, remID string
	updates     []FieldUpdate
}

func groupRemUpdates(plan *Plan) []remGroup {
	var groups []remGroup
	index := make(map[string]int)
	for _, u := range plan.Updates {
		if u.Direction != types.DirectionMdToRem {
			continue
		}
		key := u.MdID + "\x00" + u.RemID
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, remGroup{mdID: u.MdID, remID: u.RemID})
		}
		groups[i].updates = append(groups[i].updates, u)
	}
	return groups
}

func (a *Applier) applyRemGroup(ctx context.Context, g remGroup, rem *types.Index, status *types.RunStatus, applied map[string][]types.SyncDirection) {
	remTask := rem.Get(g.remID)
	if remTask == nil {
		status.Semantic += len(g.updates)
		return
	}
	fields := gateway.ItemFields{}
	for _, u := range g.updates {
		switch u.Field {
		case FieldTitle:
			v := u.New
			fields.Title = &v
		case FieldStatus:
			done := u.New == string(types.StatusDone)
			fields.Completed = &done
		case FieldDue:
			y, m, d := dates.Components(u.New)
			fields.DueYear, fields.DueMonth, fields.DueDay = &y, &m, &d
		case FieldPriority:
			p := reminders.PriorityToGateway(types.Priority(u.New))
			fields.Priority = &p
		}
	}

	callCtx := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	res, err := a.Gateway.UpdateItem(callCtx, remTask.Location.ItemID, fields, false)
	if err != nil {
		// Timeouts and transport errors are transient: record, keep the link.
		a.Logger.Warn("gateway update failed", "item", remTask.Location.ItemID, "err", err)
		status.Transient += len(g.updates)
		status.Failed += len(g.updates)
		return
	}
	for field, ferr := range res.Errors {
		a.Logger.Warn("gateway field update failed", "item", remTask.Location.ItemID, "field", field, "err", ferr)
		status.Failed++
	}

	entry := changeset.ReminderEdit{
		ItemID: remTask.Location.ItemID,
		Fields: make(map[string][2]string),
	}
	for _, u := range g.updates {
		if _, failed := res.Errors[string(u.Field)]; failed {
			continue
		}
		entry.Fields[string(u.Field)] = [2]string{u.Old, u.New}
		applyFieldToTask(remTask, u.Field, u.New)
		status.Applied++
		applied[g.mdID+"\x00"+g.remID] = append(applied[g.mdID+"\x00"+g.remID], types.DirectionMdToRem)
	}
	if len(entry.Fields) > 0 {
		a.Changeset.AddReminderEdit(entry)
	}
}

// mdGroup collects every rem→md update bound for one markdown task line.
type mdGroup struct {
	mdID, remID string
	updates     []FieldUpdate
}

func groupMdUpdates(plan *Plan) []mdGroup {
	// Updates arrive link-ordered; retain that order so changeset entries
	// mirror application order.
	var groups []mdGroup
	index := make(map[string]int)
	for _, u := range plan.Updates {
		if u.Direction != types.DirectionRemToMd {
			continue
		}
		i, ok := index[u.MdID]
		if !ok {
			i = len(groups)
			index[u.MdID] = i
			groups = append(groups, mdGroup{mdID: u.MdID, remID: u.RemID})
		}
		groups[i].updates = append(groups[i].updates, u)
	}
	return groups
}

// mdPending pairs one task's update group with its resolved task record.
type mdPending struct {
	group mdGroup
	task  *types.Task
}

// applyMdUpdates buckets the rem→md groups by file so every touched file is
// read and rewritten exactly once per run, however many linked tasks it
// holds.
func (a *Applier) applyMdUpdates(ctx context.Context, groups []mdGroup, md *types.Index, status *types.RunStatus, applied map[string][]types.SyncDirection) {
	byFile := make(map[string][]mdPending)
	var files []string
	for _, g := range groups {
		mdTask := md.Get(g.mdID)
		if mdTask == nil {
			status.Semantic += len(g.updates)
			continue
		}
		root, ok := a.VaultPaths[mdTask.Location.Vault]
		if !ok {
			status.Semantic += len(g.updates)
			a.Logger.Warn("vault not configured", "vault", mdTask.Location.Vault)
			continue
		}
		path := filepath.Join(root, mdTask.Location.FilePath)
		if _, seen := byFile[path]; !seen {
			files = append(files, path)
		}
		byFile[path] = append(byFile[path], mdPending{group: g, task: mdTask})
	}
	sort.Strings(files)

	for _, path := range files {
		pend := byFile[path]
		if err := ctx.Err(); err != nil {
			for _, p := range pend {
				status.Skipped += len(p.group.updates)
			}
			continue
		}
		a.applyMdFile(path, pend, status, applied)
	}
}

func (a *Applier) applyMdFile(path string, pend []mdPending, status *types.RunStatus, applied map[string][]types.SyncDirection) {
	lines, err := vault.ReadLines(path)
	if err != nil {
		a.Logger.Warn("markdown file unreadable", "path", path, "err", err)
		for _, p := range pend {
			status.Transient += len(p.group.updates)
			status.Failed += len(p.group.updates)
		}
		return
	}

	var edits []vault.LineEdit
	var valid []mdPending
	for _, p := range pend {
		lineNo := p.task.Location.Line
		if lineNo < 1 || lineNo > len(lines) {
			status.Semantic += len(p.group.updates)
			a.Logger.Warn("markdown line out of range", "path", path, "line", lineNo)
			continue
		}
		oldText := lines[lineNo-1]
		parsed, isTask := taskline.Parse(oldText)
		if !isTask || parsed.Title != p.task.Title {
			// The line moved or was edited since indexing: semantic mismatch,
			// leave the link alone and report.
			status.Semantic += len(p.group.updates)
			a.Logger.Warn("markdown line no longer matches indexed task", "path", path, "line", lineNo)
			continue
		}
		edits = append(edits, vault.LineEdit{
			Line:    lineNo,
			OldText: oldText,
			NewText: parsed.Rewrite(changesFor(p.group.updates)),
		})
		valid = append(valid, p)
	}
	if len(edits) == 0 {
		return
	}

	failedEdits, err := vault.ApplyEdits(path, edits)
	if err != nil {
		for _, p := range valid {
			status.Transient += len(p.group.updates)
			status.Failed += len(p.group.updates)
		}
		a.Logger.Warn("markdown edit failed", "path", path, "err", err)
		return
	}
	failedLines := make(map[int]bool, len(failedEdits))
	for _, fe := range failedEdits {
		failedLines[fe.Line] = true
	}

	for i, p := range valid {
		if failedLines[p.task.Location.Line] {
			status.Semantic += len(p.group.updates)
			continue
		}
		digestBefore := p.task.Digest
		for _, u := range p.group.updates {
			applyFieldToTask(p.task, u.Field, u.New)
			status.Applied++
			key := p.group.mdID + "\x00" + p.group.remID
			applied[key] = append(applied[key], types.DirectionRemToMd)
		}
		p.task.Digest = p.task.ContentDigest()
		a.Changeset.AddMarkdownEdit(changeset.MarkdownEdit{
			Path:         path,
			Line:         p.task.Location.Line,
			OriginalText: edits[i].OldText,
			NewText:      edits[i].NewText,
			DigestBefore: digestBefore,
			DigestAfter:  p.task.Digest,
		})
	}
}

// changesFor translates a task's planned field updates into a line rewrite.
func changesFor(updates []FieldUpdate) taskline.Changes {
	ch := taskline.Changes{}
	for _, u := range updates {
		switch u.Field {
		case FieldTitle:
			v := u.New
			ch.Title = &v
		case FieldStatus:
			st := types.Status(u.New)
			ch.Status = &st
			// A status flip maintains the completion date token.
			if st == types.StatusDone {
				today := dates.Today()
				ch.DoneOn = &today
			} else {
				empty := ""
				ch.DoneOn = &empty
			}
		case FieldDue:
			v := u.New
			ch.Due = &v
		case FieldPriority:
			p := types.Priority(u.New)
			ch.Priority = &p
		}
	}
	return ch
}

// applyFieldToTask mirrors an applied update onto the in-memory record.
func applyFieldToTask(t *types.Task, f Field, value string) {
	switch f {
	case FieldTitle:
		t.Title = value
	case FieldStatus:
		t.Status = types.Status(value)
		if t.Origin == types.OriginMarkdown {
			if t.Status == types.StatusDone {
				t.DoneOn = dates.Today()
			} else {
				t.DoneOn = ""
			}
		}
	case FieldDue:
		t.Due = value
	case FieldPriority:
		t.Priority = types.Priority(value)
	}
}

// String implements a compact rendering for logs and reports.
func (u FieldUpdate) String() string {
	return fmt.Sprintf("%s %s→%q (%s)", u.Field, u.Old, u.New, u.Direction)
}
