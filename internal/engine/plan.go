// Package engine reconciles linked task pairs field by field and creates
// missing counterparts. Planning is pure; apply drives the codec on the
// markdown side and the gateway on the reminders side.
package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/obsbridge/internal/dates"
	"github.com/untoldecay/obsbridge/internal/types"
)

// Field names one reconcilable field. Updates flow in this fixed order.
type Field string

const (
	FieldTitle    Field = "title"
	FieldStatus   Field = "status"
	FieldDue      Field = "due"
	FieldPriority Field = "priority"
)

// fieldOrder is the deterministic application order within a direction.
var fieldOrder = []Field{FieldTitle, FieldStatus, FieldDue, FieldPriority}

// FieldUpdate is one planned change to one side of one link.
type FieldUpdate struct {
	MdID      string              `json:"md_id"`
	RemID     string              `json:"rem_id"`
	Field     Field               `json:"field"`
	Direction types.SyncDirection `json:"direction"`
	Old       string              `json:"old"`
	New       string              `json:"new"`
}

// Plan is the ordered list of field updates for one reconcile run.
type Plan struct {
	Updates []FieldUpdate `json:"updates"`
}

// Empty reports whether the plan contains no work.
func (p *Plan) Empty() bool { return len(p.Updates) == 0 }

// winner decides which side a differing field flows from. Sides count as
// changed when their modified_at is after the link's last_synced_at; if
// both changed the later timestamp wins, with exact ties resolved toward
// the reminders side (platform timestamps are more granular).
func winner(md, rem *types.Task, lastSynced time.Time) types.SyncDirection {
	mdChanged := md.ModifiedAt.After(lastSynced)
	remChanged := rem.ModifiedAt.After(lastSynced)
	switch {
	case mdChanged && !remChanged:
		return types.DirectionMdToRem
	case remChanged && !mdChanged:
		return types.DirectionRemToMd
	case !mdChanged && !remChanged:
		return types.DirectionNone
	case md.ModifiedAt.After(rem.ModifiedAt):
		return types.DirectionMdToRem
	default:
		return types.DirectionRemToMd
	}
}

// fieldValue projects a task field to its plan payload string.
func fieldValue(t *types.Task, f Field) string {
	switch f {
	case FieldTitle:
		return strings.TrimSpace(t.Title)
	case FieldStatus:
		return string(t.Status)
	case FieldDue:
		return t.Due
	case FieldPriority:
		return string(t.Priority)
	}
	return ""
}

func fieldDiffers(md, rem *types.Task, f Field) bool {
	if f == FieldDue {
		return !dates.Equal(md.Due, rem.Due)
	}
	a, b := fieldValue(md, f), fieldValue(rem, f)
	if f == FieldPriority {
		// Absent and none are the same thing.
		if a == "" {
			a = string(types.PriorityNone)
		}
		if b == "" {
			b = string(types.PriorityNone)
		}
	}
	return a != b
}

// BuildPlan diffs every link and emits the ordered update list. Links are
// processed in (md_id, rem_id) order; within one link and direction the
// field order is fixed (title, status, due, priority).
func BuildPlan(md, rem *types.Index, linkSet []*types.Link) *Plan {
	ordered := append([]*types.Link(nil), linkSet...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].MdID != ordered[j].MdID {
			return ordered[i].MdID < ordered[j].MdID
		}
		return ordered[i].RemID < ordered[j].RemID
	})

	plan := &Plan{}
	for _, l := range ordered {
		mdTask := md.Get(l.MdID)
		remTask := rem.Get(l.RemID)
		if mdTask == nil || remTask == nil {
			continue
		}
		for _, f := range fieldOrder {
			if !fieldDiffers(mdTask, remTask, f) {
				continue
			}
			dir := winner(mdTask, remTask, l.LastSyncedAt)
			if dir == types.DirectionNone {
				continue
			}
			u := FieldUpdate{MdID: l.MdID, RemID: l.RemID, Field: f, Direction: dir}
			if dir == types.DirectionMdToRem {
				u.Old = fieldValue(remTask, f)
				u.New = fieldValue(mdTask, f)
			} else {
				u.Old = fieldValue(mdTask, f)
				u.New = fieldValue(remTask, f)
			}
			plan.Updates = append(plan.Updates, u)
		}
	}
	return plan
}
