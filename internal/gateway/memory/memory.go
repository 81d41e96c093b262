// Package memory is the in-memory gateway used by the test suite and by
// fake-gateway runs. It mirrors the platform contract closely enough to
// exercise every pipeline path, including injected per-list and per-call
// failures.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/untoldecay/obsbridge/internal/gateway"
)

// Compile-time conformance check.
var _ gateway.Gateway = (*Gateway)(nil)

// Gateway is an in-memory reminders service.
type Gateway struct {
	mu     sync.Mutex
	nextID int
	items  map[string]*gateway.Item // item id -> item
	lists  map[string]bool          // known list ids

	// FailLists marks list ids whose enumeration should fail.
	FailLists map[string]error
	// FailUpdates marks item ids whose updates should fail per field.
	FailUpdates map[string]error
	// Clock lets tests pin timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// New returns an empty in-memory gateway with the given lists registered.
func New(listIDs ...string) *Gateway {
	g := &Gateway{
		items:       make(map[string]*gateway.Item),
		lists:       make(map[string]bool),
		FailLists:   make(map[string]error),
		FailUpdates: make(map[string]error),
		Clock:       time.Now,
	}
	for _, id := range listIDs {
		g.lists[id] = true
	}
	return g
}

// Seed inserts an item directly, assigning an id if absent. Returns the
// stored item.
func (g *Gateway) Seed(item gateway.Item) *gateway.Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	if item.ID == "" {
		g.nextID++
		item.ID = "item-" + strconv.Itoa(g.nextID)
	}
	if item.ExternalID == "" {
		item.ExternalID = "x-" + item.ID
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = g.Clock()
	}
	if item.ModifiedAt.IsZero() {
		item.ModifiedAt = item.CreatedAt
	}
	g.lists[item.ListID] = true
	stored := item
	g.items[item.ID] = &stored
	return &stored
}

// ListItems enumerates the requested lists, honoring injected failures.
func (g *Gateway) ListItems(ctx context.Context, listIDs []string) (gateway.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return gateway.ListResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.items))
	for id := range g.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var res gateway.ListResult
	for _, listID := range listIDs {
		if err, ok := g.FailLists[listID]; ok {
			res.Errors = append(res.Errors, gateway.ListError{ListID: listID, Err: err})
			continue
		}
		for _, id := range ids {
			if item := g.items[id]; item.ListID == listID {
				res.Items = append(res.Items, *item)
			}
		}
	}
	return res, nil
}

// FindItem returns the item with the given id, scoped to listID when set.
func (g *Gateway) FindItem(ctx context.Context, itemID, listID string) (*gateway.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	item, ok := g.items[itemID]
	if !ok || (listID != "" && item.ListID != listID) {
		return nil, nil
	}
	out := *item
	return &out, nil
}

// CreateItem adds a new item to the given list.
func (g *Gateway) CreateItem(ctx context.Context, listID string, fields gateway.ItemFields) (*gateway.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.lists[listID] {
		return nil, fmt.Errorf("unknown list %q", listID)
	}
	g.nextID++
	now := g.Clock()
	item := &gateway.Item{
		ID:         "item-" + strconv.Itoa(g.nextID),
		ListID:     listID,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	item.ExternalID = "x-" + item.ID
	applyFields(item, fields)
	g.items[item.ID] = item
	out := *item
	return &out, nil
}

// UpdateItem applies field updates, reporting per-field results. With
// dryRun set, the applied-change list is computed but nothing is stored.
func (g *Gateway) UpdateItem(ctx context.Context, itemID string, fields gateway.ItemFields, dryRun bool) (gateway.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return gateway.UpdateResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	res := gateway.UpdateResult{Errors: make(map[string]error)}
	item, ok := g.items[itemID]
	if !ok {
		return res, fmt.Errorf("item %q not found", itemID)
	}
	if err, injected := g.FailUpdates[itemID]; injected {
		return res, err
	}
	working := *item
	if fields.Title != nil && *fields.Title != working.Title {
		res.Applied = append(res.Applied, gateway.AppliedChange{Field: "title", Old: working.Title, New: *fields.Title})
		working.Title = *fields.Title
	}
	if fields.DueYear != nil {
		old := fmt.Sprintf("%04d-%02d-%02d", working.DueYear, working.DueMonth, working.DueDay)
		working.DueYear, working.DueMonth, working.DueDay = *fields.DueYear, deref(fields.DueMonth), deref(fields.DueDay)
		res.Applied = append(res.Applied, gateway.AppliedChange{
			Field: "due", Old: old,
			New: fmt.Sprintf("%04d-%02d-%02d", working.DueYear, working.DueMonth, working.DueDay),
		})
	}
	if fields.Priority != nil && *fields.Priority != working.Priority {
		res.Applied = append(res.Applied, gateway.AppliedChange{
			Field: "priority",
			Old:   strconv.Itoa(working.Priority),
			New:   strconv.Itoa(*fields.Priority),
		})
		working.Priority = *fields.Priority
	}
	if fields.Completed != nil && *fields.Completed != working.Completed {
		res.Applied = append(res.Applied, gateway.AppliedChange{
			Field: "status",
			Old:   strconv.FormatBool(working.Completed),
			New:   strconv.FormatBool(*fields.Completed),
		})
		working.Completed = *fields.Completed
	}
	if !dryRun && len(res.Applied) > 0 {
		working.ModifiedAt = g.Clock()
		*item = working
	}
	return res, nil
}

// DeleteItem removes the item; the flag reports whether it existed.
func (g *Gateway) DeleteItem(ctx context.Context, itemID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.items[itemID]; !ok {
		return false, nil
	}
	delete(g.items, itemID)
	return true, nil
}

// Snapshot returns every stored item in id order. Fake-gateway runs use it
// to persist state between invocations.
func (g *Gateway) Snapshot() []gateway.Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.items))
	for id := range g.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]gateway.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, *g.items[id])
	}
	return out
}

// Len reports the number of stored items.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.items)
}

func applyFields(item *gateway.Item, fields gateway.ItemFields) {
	if fields.Title != nil {
		item.Title = *fields.Title
	}
	if fields.DueYear != nil {
		item.DueYear = *fields.DueYear
	}
	if fields.DueMonth != nil {
		item.DueMonth = *fields.DueMonth
	}
	if fields.DueDay != nil {
		item.DueDay = *fields.DueDay
	}
	if fields.Priority != nil {
		item.Priority = *fields.Priority
	}
	if fields.Completed != nil {
		item.Completed = *fields.Completed
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
