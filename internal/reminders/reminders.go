// Package reminders turns gateway items into the common task shape.
package reminders

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/untoldecay/obsbridge/internal/dates"
	"github.com/untoldecay/obsbridge/internal/gateway"
	"github.com/untoldecay/obsbridge/internal/identity"
	"github.com/untoldecay/obsbridge/internal/types"
)

// Indexer enumerates reminders lists through the gateway.
type Indexer struct {
	Gateway gateway.Gateway
	Lists   []string
	Logger  *slog.Logger
}

// NewIndexer returns an indexer over the given lists.
func NewIndexer(gw gateway.Gateway, lists []string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{Gateway: gw, Lists: lists, Logger: logger}
}

// Scan builds the reminders index. Per-list gateway failures produce a
// partial index with the failing lists recorded as opaque; the engine must
// not propose deletions against them.
func (ix *Indexer) Scan(ctx context.Context, runID string) (*types.Index, error) {
	res, err := ix.Gateway.ListItems(ctx, ix.Lists)
	if err != nil {
		return nil, fmt.Errorf("listing reminders: %w", err)
	}
	index := types.NewIndex(runID)
	index.Meta.SourceCount = len(ix.Lists)
	for _, le := range res.Errors {
		if index.Meta.ErroredLists == nil {
			index.Meta.ErroredLists = make(map[string]string)
		}
		index.Meta.ErroredLists[le.ListID] = le.Err.Error()
		ix.Logger.Warn("reminders list enumeration failed", "list", le.ListID, "err", le.Err)
	}
	for _, item := range res.Items {
		t := TaskFromItem(item)
		if existing := index.Get(t.ID); existing != nil {
			ix.Logger.Warn("duplicate reminders id quarantined", "id", t.ID)
			continue
		}
		index.Add(t)
	}
	return index, nil
}

// TaskFromItem maps one gateway item to the common task shape.
func TaskFromItem(item gateway.Item) *types.Task {
	status := types.StatusTodo
	if item.Completed {
		status = types.StatusDone
	}
	t := &types.Task{
		Origin:   types.OriginReminders,
		Title:    item.Title,
		Status:   status,
		Due:      dates.FromComponents(item.DueYear, item.DueMonth, item.DueDay),
		Priority: PriorityFromGateway(item.Priority),
		Location: types.Location{
			ListID: item.ListID,
			ItemID: item.ID,
		},
		ModifiedAt: item.ModifiedAt,
		CreatedAt:  item.CreatedAt,
	}
	t.ID = identity.ForReminders(item)
	t.Digest = t.ContentDigest()
	return t
}

// PriorityFromGateway maps the platform 0-9 scale to the common model:
// 0 none, 1 highest, 2-4 high, 5-6 medium, 7-9 low.
func PriorityFromGateway(p int) types.Priority {
	switch {
	case p <= 0:
		return types.PriorityNone
	case p == 1:
		return types.PriorityHighest
	case p <= 4:
		return types.PriorityHigh
	case p <= 6:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}

// PriorityToGateway is the write-side mapping. It is symmetric with
// PriorityFromGateway on the anchors it emits: round-tripping any written
// value returns the same common priority.
func PriorityToGateway(p types.Priority) int {
	switch p {
	case types.PriorityHighest:
		return 1
	case types.PriorityHigh:
		return 4
	case types.PriorityMedium:
		return 5
	case types.PriorityLow:
		return 9
	default:
		return 0
	}
}

// FieldsForTask projects a common task onto gateway write fields.
func FieldsForTask(t *types.Task) gateway.ItemFields {
	title := t.Title
	completed := t.Status == types.StatusDone
	prio := PriorityToGateway(t.Priority)
	y, m, d := dates.Components(t.Due)
	f := gateway.ItemFields{
		Title:     &title,
		Priority:  &prio,
		Completed: &completed,
	}
	if y != 0 {
		f.DueYear, f.DueMonth, f.DueDay = &y, &m, &d
	}
	return f
}
