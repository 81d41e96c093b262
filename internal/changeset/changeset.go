// Package changeset records every mutation a run actually applies. The
// changeset is the only artifact consulted for rollback, so each entry is
// self-contained enough to reconstruct the pre-state.
package changeset

import (
	"fmt"
	"sync"
	"time"

	"github.com/untoldecay/obsbridge/internal/safeio"
	"github.com/untoldecay/obsbridge/internal/types"
)

// MarkdownEdit records one applied line rewrite.
type MarkdownEdit struct {
	Path         string    `json:"path"`
	Line         int       `json:"line"`
	OriginalText string    `json:"original_text"`
	NewText      string    `json:"new_text"`
	DigestBefore string    `json:"digest_before"`
	DigestAfter  string    `json:"digest_after"`
	AppliedAt    time.Time `json:"applied_at"`
}

// ReminderEdit records one applied gateway field update.
type ReminderEdit struct {
	ItemID    string               `json:"item_id"`
	Fields    map[string][2]string `json:"fields"` // field -> [old, new]
	AppliedAt time.Time            `json:"applied_at"`
}

// Creation records a counterpart created on either side, with the link it
// formed.
type Creation struct {
	Task      *types.Task `json:"task"`
	Link      *types.Link `json:"link"`
	AppliedAt time.Time   `json:"applied_at"`
}

// Retirement records a duplicate removed on either side.
type Retirement struct {
	Task         *types.Task `json:"task"`
	OriginalText string      `json:"original_text,omitempty"` // markdown only
	AppliedAt    time.Time   `json:"applied_at"`
}

// Changeset is the per-run mutation record, persisted as one JSON document
// with one array per mutation kind.
type Changeset struct {
	mu sync.Mutex

	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	MdEdits    []MarkdownEdit `json:"markdown_edits"`
	RemEdits   []ReminderEdit `json:"reminders_edits"`
	MdCreated  []Creation     `json:"markdown_created"`
	RemCreated []Creation     `json:"reminders_created"`
	MdRetired  []Retirement   `json:"markdown_retired"`
	RemRetired []Retirement   `json:"reminders_retired"`
}

// New starts an empty changeset for the run.
func New(runID string) *Changeset {
	return &Changeset{RunID: runID, StartedAt: time.Now().UTC()}
}

// AddMarkdownEdit appends one applied line rewrite.
func (c *Changeset) AddMarkdownEdit(e MarkdownEdit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.AppliedAt = time.Now().UTC()
	c.MdEdits = append(c.MdEdits, e)
}

// AddReminderEdit appends one applied gateway update.
func (c *Changeset) AddReminderEdit(e ReminderEdit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.AppliedAt = time.Now().UTC()
	c.RemEdits = append(c.RemEdits, e)
}

// AddCreation appends a counterpart creation for the given side.
func (c *Changeset) AddCreation(origin types.Origin, task *types.Task, link *types.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := Creation{Task: task, Link: link, AppliedAt: time.Now().UTC()}
	if origin == types.OriginMarkdown {
		c.MdCreated = append(c.MdCreated, entry)
	} else {
		c.RemCreated = append(c.RemCreated, entry)
	}
}

// AddRetirement appends a duplicate retirement for the given side.
func (c *Changeset) AddRetirement(origin types.Origin, task *types.Task, originalText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := Retirement{Task: task, OriginalText: originalText, AppliedAt: time.Now().UTC()}
	if origin == types.OriginMarkdown {
		c.MdRetired = append(c.MdRetired, entry)
	} else {
		c.RemRetired = append(c.RemRetired, entry)
	}
}

// Empty reports whether the run applied no mutations.
func (c *Changeset) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.MdEdits) == 0 && len(c.RemEdits) == 0 &&
		len(c.MdCreated) == 0 && len(c.RemCreated) == 0 &&
		len(c.MdRetired) == 0 && len(c.RemRetired) == 0
}

// Save atomically writes the changeset. A failure here is catastrophic for
// the run: without the changeset there is no rollback path.
func (c *Changeset) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := safeio.SaveJSON(path, c); err != nil {
		return fmt.Errorf("persisting changeset: %w", err)
	}
	return nil
}
