// Package gateway defines the narrow contract to the platform reminders
// service. All platform-specific behavior lives behind this interface; the
// pipeline only ever sees the shapes below. The in-memory implementation in
// gateway/memory backs the test suite and fake-gateway runs.
package gateway

import (
	"context"
	"time"
)

// Item is one reminders entry as the platform reports it. Due dates travel
// as date components; time-of-day is ignored.
type Item struct {
	ID         string
	ExternalID string
	ListID     string
	Title      string
	Notes      string
	DueYear    int
	DueMonth   int
	DueDay     int
	Priority   int // platform scale 0-9, 0 = none
	Completed  bool
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// ItemFields carries the writable fields for create and update calls. Nil
// pointers leave a field alone.
type ItemFields struct {
	Title     *string
	DueYear   *int
	DueMonth  *int
	DueDay    *int
	Priority  *int
	Completed *bool
}

// ListError records a per-list enumeration failure. Lists that error are
// treated as opaque downstream.
type ListError struct {
	ListID string
	Err    error
}

// ListResult is the outcome of enumerating a set of lists.
type ListResult struct {
	Items  []Item
	Errors []ListError
}

// AppliedChange reports one field update that took effect.
type AppliedChange struct {
	Field string
	Old   string
	New   string
}

// UpdateResult is the per-field outcome of an update call.
type UpdateResult struct {
	Applied []AppliedChange
	Errors  map[string]error // field name -> failure
}

// Gateway is the external collaborator boundary. Every call takes a context
// so callers can attach per-call timeouts; a deadline hit is a transient
// failure, not a reason to retire links.
type Gateway interface {
	ListItems(ctx context.Context, listIDs []string) (ListResult, error)
	FindItem(ctx context.Context, itemID, listID string) (*Item, error)
	CreateItem(ctx context.Context, listID string, fields ItemFields) (*Item, error)
	UpdateItem(ctx context.Context, itemID string, fields ItemFields, dryRun bool) (UpdateResult, error)
	DeleteItem(ctx context.Context, itemID string) (bool, error)
}
