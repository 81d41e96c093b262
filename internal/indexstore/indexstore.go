// Package indexstore persists per-universe task indexes between runs.
package indexstore

import (
	"fmt"
	"log/slog"

	"github.com/untoldecay/obsbridge/internal/safeio"
	"github.com/untoldecay/obsbridge/internal/types"
)

// Store reads and writes one index file.
type Store struct {
	Path   string
	Logger *slog.Logger
}

// NewStore returns a store for the index file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Path: path, Logger: logger}
}

// Load reads the persisted index. Missing or corrupt files yield nil: the
// caller rebuilds from source. A schema ahead of ours is refused so an older
// binary never rewrites state it does not understand.
func (s *Store) Load() (*types.Index, error) {
	var ix types.Index
	ok, err := safeio.LoadJSONBounded(s.Path, &ix, 0)
	if err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}
	if !ok {
		return nil, nil
	}
	if ix.Meta.Schema > types.IndexSchema {
		return nil, fmt.Errorf("index %s has schema %d, newer than supported %d", s.Path, ix.Meta.Schema, types.IndexSchema)
	}
	if ix.Tasks == nil {
		ix.Tasks = make(map[string]*types.Task)
	}
	return &ix, nil
}

// Save atomically replaces the index file.
func (s *Store) Save(ix *types.Index) error {
	if err := safeio.SaveJSON(s.Path, ix); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	return nil
}
