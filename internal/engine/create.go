package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/untoldecay/obsbridge/internal/changeset"
	"github.com/untoldecay/obsbridge/internal/gateway"
	"github.com/untoldecay/obsbridge/internal/identity"
	"github.com/untoldecay/obsbridge/internal/reminders"
	"github.com/untoldecay/obsbridge/internal/taskline"
	"github.com/untoldecay/obsbridge/internal/types"
	"github.com/untoldecay/obsbridge/internal/vault"
)

// fromRemindersTag marks markdown lines this tool created from a reminders
// counterpart, so a vault owner can find and triage them.
const fromRemindersTag = "from-reminders"

// CreateOptions bound and steer counterpart creation.
type CreateOptions struct {
	MdToRemCap int // max reminders created per run; 0 disables the direction
	RemToMdCap int // max markdown lines created per run; 0 disables
	MaxAgeDays int // tasks last modified before this window are left alone; 0 = no age gate

	// WriteBackAnchors appends a fresh block anchor to a markdown task when
	// its reminders counterpart is created, making the identity durable.
	WriteBackAnchors bool

	// DefaultListID receives md→rem creations.
	DefaultListID string

	// Destination picks the vault and note for a rem→md creation. When nil,
	// everything lands in InboxNote of the first configured vault.
	Destination func(t *types.Task) (vaultName, relPath string)
	InboxNote   string
	InboxVault  string
}

// Creator makes counterparts for unlinked tasks, capped per direction per
// run so a misconfigured vault cannot flood the reminders service.
type Creator struct {
	Gateway    gateway.Gateway
	Changeset  *changeset.Changeset
	VaultPaths map[string]string
	Options    CreateOptions
	Logger     *slog.Logger
	Now        func() time.Time
}

// NewCreator wires a creator for one run.
func NewCreator(gw gateway.Gateway, cs *changeset.Changeset, vaultPaths map[string]string, opts CreateOptions, logger *slog.Logger) *Creator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Creator{
		Gateway:    gw,
		Changeset:  cs,
		VaultPaths: vaultPaths,
		Options:    opts,
		Logger:     logger,
		Now:        time.Now,
	}
}

// Run creates counterparts in both directions and returns the links formed.
// Newly created pairs carry score 1.0: they were born identical. Tasks beyond
// a direction's cap are counted as skipped and reported, never silently
// dropped.
func (c *Creator) Run(ctx context.Context, md, rem *types.Index, linkSet []*types.Link, status *types.RunStatus) []*types.Link {
	linkedMd := make(map[string]bool, len(linkSet))
	linkedRem := make(map[string]bool, len(linkSet))
	for _, l := range linkSet {
		linkedMd[l.MdID] = true
		linkedRem[l.RemID] = true
	}

	var formed []*types.Link
	formed = append(formed, c.createReminders(ctx, md, rem, linkedMd, status)...)
	formed = append(formed, c.createMarkdown(ctx, md, rem, linkedRem, status)...)
	return formed
}

// stale reports whether a task fell out of the creation age window.
func (c *Creator) stale(t *types.Task) bool {
	if c.Options.MaxAgeDays <= 0 {
		return false
	}
	cutoff := c.Now().UTC().AddDate(0, 0, -c.Options.MaxAgeDays)
	return t.ModifiedAt.Before(cutoff)
}

func (c *Creator) createReminders(ctx context.Context, md, rem *types.Index, linkedMd map[string]bool, status *types.RunStatus) []*types.Link {
	if c.Options.MdToRemCap <= 0 || c.Options.DefaultListID == "" {
		return nil
	}
	var formed []*types.Link
	created := 0
	for _, id := range md.SortedIDs() {
		t := md.Tasks[id]
		if linkedMd[id] || t.Status == types.StatusDone || c.stale(t) {
			continue
		}
		if err := ctx.Err(); err != nil {
			status.Skipped++
			continue
		}
		if created >= c.Options.MdToRemCap {
			status.Skipped++
			continue
		}

		item, err := c.Gateway.CreateItem(ctx, c.Options.DefaultListID, reminders.FieldsForTask(t))
		if err != nil {
			c.Logger.Warn("creating reminders counterpart failed", "md", id, "err", err)
			status.Transient++
			status.Failed++
			continue
		}
		created++

		mdID := id
		if c.Options.WriteBackAnchors && t.Anchor == "" {
			if newID, ok := c.writeBackAnchor(t, md); ok {
				mdID = newID
			}
		}

		remTask := reminders.TaskFromItem(*item)
		rem.Add(remTask)
		now := c.Now().UTC()
		link := &types.Link{
			MdID:          mdID,
			RemID:         remTask.ID,
			Score:         1.0,
			CreatedAt:     now,
			LastScoredAt:  now,
			LastSyncedAt:  now,
			LastDirection: types.DirectionMdToRem,
		}
		formed = append(formed, link)
		c.Changeset.AddCreation(types.OriginReminders, remTask, link)
		status.Applied++
	}
	return formed
}

// writeBackAnchor appends a fresh block anchor to the task's line and re-keys
// the task under its now-durable anchor identity. A verification failure
// leaves the hash identity in place; the link still works for this run.
func (c *Creator) writeBackAnchor(t *types.Task, md *types.Index) (string, bool) {
	root, ok := c.VaultPaths[t.Location.Vault]
	if !ok {
		return "", false
	}
	path := filepath.Join(root, t.Location.FilePath)
	lines, err := vault.ReadLines(path)
	if err != nil || t.Location.Line < 1 || t.Location.Line > len(lines) {
		return "", false
	}
	oldText := lines[t.Location.Line-1]
	parsed, isTask := taskline.Parse(oldText)
	if !isTask || parsed.Title != t.Title || parsed.Anchor != "" {
		return "", false
	}

	anchor := identity.NewAnchor(identity.CollectAnchors(lines))
	parsed.Anchor = anchor
	newText := parsed.Rewrite(taskline.Changes{})

	failed, err := vault.ApplyEdits(path, []vault.LineEdit{{
		Line:    t.Location.Line,
		OldText: oldText,
		NewText: newText,
	}})
	if err != nil || len(failed) > 0 {
		c.Logger.Warn("anchor write-back failed", "path", path, "line", t.Location.Line)
		return "", false
	}
	c.Changeset.AddMarkdownEdit(changeset.MarkdownEdit{
		Path:         path,
		Line:         t.Location.Line,
		OriginalText: oldText,
		NewText:      newText,
		DigestBefore: t.Digest,
		DigestAfter:  t.Digest, // anchors are not part of the content digest
	})

	delete(md.Tasks, t.ID)
	t.Anchor = anchor
	t.ID = t.Location.Vault + "/" + anchor
	md.Add(t)
	return t.ID, true
}

func (c *Creator) createMarkdown(ctx context.Context, md, rem *types.Index, linkedRem map[string]bool, status *types.RunStatus) []*types.Link {
	if c.Options.RemToMdCap <= 0 {
		return nil
	}
	var formed []*types.Link
	created := 0
	for _, id := range rem.SortedIDs() {
		t := rem.Tasks[id]
		if linkedRem[id] || t.Status == types.StatusDone || c.stale(t) {
			continue
		}
		if err := ctx.Err(); err != nil {
			status.Skipped++
			continue
		}
		if created >= c.Options.RemToMdCap {
			status.Skipped++
			continue
		}

		vaultName, relPath := c.destination(t)
		root, ok := c.VaultPaths[vaultName]
		if !ok {
			c.Logger.Warn("no vault for markdown counterpart", "vault", vaultName)
			status.Semantic++
			continue
		}
		path := filepath.Join(root, relPath)

		var existing map[string]bool
		if lines, err := vault.ReadLines(path); err == nil {
			existing = identity.CollectAnchors(lines)
		}
		anchor := identity.NewAnchor(existing)

		line := taskline.Format(taskline.FormatOptions{
			Status:   t.Status,
			Title:    t.Title,
			Due:      t.Due,
			Priority: t.Priority,
			Tags:     []string{fromRemindersTag},
			Anchor:   anchor,
		})
		lineNo, err := vault.AppendLine(path, line)
		if err != nil {
			c.Logger.Warn("creating markdown counterpart failed", "rem", id, "err", err)
			status.Transient++
			status.Failed++
			continue
		}
		created++

		mdTask := &types.Task{
			ID:       vaultName + "/" + anchor,
			Origin:   types.OriginMarkdown,
			Title:    t.Title,
			Status:   t.Status,
			Due:      t.Due,
			Priority: t.Priority,
			Tags:     []string{fromRemindersTag},
			Anchor:   anchor,
			Location: types.Location{
				Vault:    vaultName,
				FilePath: relPath,
				Line:     lineNo,
			},
			ModifiedAt: c.Now().UTC(),
			CreatedAt:  c.Now().UTC(),
		}
		mdTask.Digest = mdTask.ContentDigest()
		md.Add(mdTask)

		now := c.Now().UTC()
		link := &types.Link{
			MdID:          mdTask.ID,
			RemID:         id,
			Score:         1.0,
			CreatedAt:     now,
			LastScoredAt:  now,
			LastSyncedAt:  now,
			LastDirection: types.DirectionRemToMd,
		}
		formed = append(formed, link)
		c.Changeset.AddCreation(types.OriginMarkdown, mdTask, link)
		status.Applied++
	}
	return formed
}

func (c *Creator) destination(t *types.Task) (string, string) {
	if c.Options.Destination != nil {
		return c.Options.Destination(t)
	}
	return c.Options.InboxVault, c.Options.InboxNote
}
