// Package types defines the core data structures shared across the sync
// pipeline: the common task shape, links, indexes, and run status.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Origin identifies which universe a task came from.
type Origin string

const (
	OriginMarkdown  Origin = "markdown"
	OriginReminders Origin = "reminders"
)

// Status is task completion status.
type Status string

const (
	StatusTodo Status = "todo"
	StatusDone Status = "done"
)

// Priority levels in the common model.
type Priority string

const (
	PriorityNone    Priority = "none"
	PriorityLow     Priority = "low"
	PriorityMedium  Priority = "medium"
	PriorityHigh    Priority = "high"
	PriorityHighest Priority = "highest"
)

// SyncDirection records which way the last reconcile flowed for a link.
type SyncDirection string

const (
	DirectionNone    SyncDirection = "none"
	DirectionMdToRem SyncDirection = "md_to_rem"
	DirectionRemToMd SyncDirection = "rem_to_md"
	DirectionBoth    SyncDirection = "both"
)

// Location is the origin-specific locator for a task.
// Markdown tasks carry vault/file/line; reminders tasks carry list/item ids.
type Location struct {
	Vault    string `json:"vault,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	Line     int    `json:"line,omitempty"`
	ListID   string `json:"list_id,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
}

// Task is the common shape reconciled across the boundary.
type Task struct {
	ID         string    `json:"id"`
	Origin     Origin    `json:"origin"`
	Title      string    `json:"title"`
	Status     Status    `json:"status"`
	Due        string    `json:"due,omitempty"`       // canonical YYYY-MM-DD
	Scheduled  string    `json:"scheduled,omitempty"` // markdown only
	Start      string    `json:"start,omitempty"`     // markdown only
	DoneOn     string    `json:"done_on,omitempty"`
	Priority   Priority  `json:"priority"`
	Recurrence string    `json:"recurrence,omitempty"` // markdown only
	Tags       []string  `json:"tags,omitempty"`
	Location   Location  `json:"location"`
	Anchor     string    `json:"anchor,omitempty"` // block anchor, markdown only
	Digest     string    `json:"content_digest"`
	ModifiedAt time.Time `json:"modified_at"`
	CreatedAt  time.Time `json:"created_at"`

	// titleTokens caches the normalized token set used by the matcher.
	// Populated lazily; never persisted.
	titleTokens []string
}

// ContentDigest computes the stable hash over title, due, status, and tags.
// Tags are sorted so digest does not depend on their order of appearance.
func (t *Task) ContentDigest() string {
	tags := append([]string(nil), t.Tags...)
	sort.Strings(tags)
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(t.Title)))
	h.Write([]byte{0})
	h.Write([]byte(t.Due))
	h.Write([]byte{0})
	h.Write([]byte(t.Status))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(tags, ",")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// TitleTokens returns the cached normalized token set, computing it with
// the supplied tokenizer on first use.
func (t *Task) TitleTokens(tokenize func(string) []string) []string {
	if t.titleTokens == nil {
		t.titleTokens = tokenize(t.Title)
		if t.titleTokens == nil {
			t.titleTokens = []string{}
		}
	}
	return t.titleTokens
}

// Link is a one-to-one association between a markdown task and a reminders
// task. At most one link may reference any given endpoint id.
type Link struct {
	MdID          string        `json:"md_id"`
	RemID         string        `json:"rem_id"`
	Score         float64       `json:"score"`
	CreatedAt     time.Time     `json:"created_at"`
	LastScoredAt  time.Time     `json:"last_scored_at"`
	LastSyncedAt  time.Time     `json:"last_synced_at,omitzero"`
	LastDirection SyncDirection `json:"last_sync_direction"`
}

// IndexMeta is the metadata header of a persisted index file.
type IndexMeta struct {
	Schema      int       `json:"schema"`
	GeneratedAt time.Time `json:"generated_at"`
	RunID       string    `json:"run_id"`
	SourceCount int       `json:"source_count"`
	TaskCount   int       `json:"task_count"`
	// ErroredLists names reminders lists whose enumeration failed. Tasks in
	// these lists are opaque: the engine must not propose deletions there.
	ErroredLists map[string]string `json:"errored_lists,omitempty"`
}

// IndexSchema is the current persisted index schema version.
const IndexSchema = 2

// Index maps task id to task for one universe.
type Index struct {
	Meta  IndexMeta        `json:"meta"`
	Tasks map[string]*Task `json:"tasks"`
}

// NewIndex returns an empty index stamped with the given run id.
func NewIndex(runID string) *Index {
	return &Index{
		Meta: IndexMeta{
			Schema:      IndexSchema,
			GeneratedAt: time.Now().UTC(),
			RunID:       runID,
		},
		Tasks: make(map[string]*Task),
	}
}

// Get returns the task with the given id, or nil.
func (ix *Index) Get(id string) *Task {
	if ix == nil {
		return nil
	}
	return ix.Tasks[id]
}

// Add inserts a task and keeps the task count current.
func (ix *Index) Add(t *Task) {
	ix.Tasks[t.ID] = t
	ix.Meta.TaskCount = len(ix.Tasks)
}

// SortedIDs returns all task ids in lexical order. Used wherever iteration
// order must be deterministic.
func (ix *Index) SortedIDs() []string {
	ids := make([]string, 0, len(ix.Tasks))
	for id := range ix.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListOpaque reports whether the given reminders list had an enumeration
// error in this index.
func (ix *Index) ListOpaque(listID string) bool {
	_, ok := ix.Meta.ErroredLists[listID]
	return ok
}

// Disposition is the aggregate outcome of a run.
type Disposition string

const (
	RunClean   Disposition = "clean"
	RunPartial Disposition = "partial"
	RunFailed  Disposition = "failed"
)

// RunStatus aggregates per-kind counters for one reconcile run.
type RunStatus struct {
	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Transient int `json:"transient"`
	Semantic  int `json:"semantic"`
	Integrity int `json:"integrity"`
}

// Disposition derives the process exit disposition from the counters. A run
// is clean only when nothing failed and nothing was left behind; skipped
// updates degrade it to partial because the universes have not converged.
func (s RunStatus) Disposition() Disposition {
	switch {
	case s.Failed == 0 && s.Transient == 0 && s.Semantic == 0 && s.Skipped == 0:
		return RunClean
	case s.Applied > 0 || s.Skipped > 0:
		return RunPartial
	default:
		return RunFailed
	}
}

// Merge adds the counters of other into s.
func (s *RunStatus) Merge(other RunStatus) {
	s.Applied += other.Applied
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Transient += other.Transient
	s.Semantic += other.Semantic
	s.Integrity += other.Integrity
}
