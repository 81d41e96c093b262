// Package links persists the matched pair set with scores, timestamps, and
// audit metadata.
package links

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/untoldecay/obsbridge/internal/match"
	"github.com/untoldecay/obsbridge/internal/safeio"
	"github.com/untoldecay/obsbridge/internal/types"
)

// Schema is the persisted link file schema version.
const Schema = 1

// Meta is the link file metadata header.
type Meta struct {
	Schema      int             `json:"schema"`
	GeneratedAt time.Time       `json:"generated_at"`
	RunID       string          `json:"run_id"`
	LinkCount   int             `json:"link_count"`
	MinScore    float64         `json:"min_score"`
	Algorithm   match.Algorithm `json:"algorithm"`
}

// File is the persisted link document.
type File struct {
	Meta  Meta          `json:"meta"`
	Links []*types.Link `json:"links"`
}

// Store reads and writes the link file through the safe-I/O substrate.
type Store struct {
	Path   string
	RunID  string
	Logger *slog.Logger
}

// NewStore returns a store for the link file at path.
func NewStore(path, runID string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Path: path, RunID: runID, Logger: logger}
}

// Load reads the link set. A missing or unreadable file yields an empty
// set. Records referencing an endpoint another record already holds are
// quarantined and reported.
func (s *Store) Load() ([]*types.Link, error) {
	var f File
	ok, err := safeio.LoadJSONBounded(s.Path, &f, 0)
	if err != nil {
		return nil, fmt.Errorf("loading links: %w", err)
	}
	if !ok {
		return nil, nil
	}
	seenMd := make(map[string]bool)
	seenRem := make(map[string]bool)
	valid := f.Links[:0]
	for _, l := range f.Links {
		if seenMd[l.MdID] || seenRem[l.RemID] {
			s.Logger.Warn("quarantining link with duplicate endpoint", "md", l.MdID, "rem", l.RemID)
			continue
		}
		seenMd[l.MdID] = true
		seenRem[l.RemID] = true
		valid = append(valid, l)
	}
	return valid, nil
}

// Save atomically replaces the link file, stamping the current run id.
// If another process stamped the file since this run started, a
// concurrency warning is logged before overwriting.
func (s *Store) Save(linkSet []*types.Link, minScore float64, algo match.Algorithm) error {
	var prior File
	if ok, _ := safeio.LoadJSONBounded(s.Path, &prior, 0); ok {
		if prior.Meta.RunID != "" && prior.Meta.RunID != s.RunID {
			s.Logger.Warn("link file was written by another run",
				"theirs", prior.Meta.RunID, "ours", s.RunID)
		}
	}
	f := File{
		Meta: Meta{
			Schema:      Schema,
			GeneratedAt: time.Now().UTC(),
			RunID:       s.RunID,
			LinkCount:   len(linkSet),
			MinScore:    minScore,
			Algorithm:   algo,
		},
		Links: linkSet,
	}
	if err := safeio.SaveJSON(s.Path, &f); err != nil {
		return fmt.Errorf("saving links: %w", err)
	}
	return nil
}
