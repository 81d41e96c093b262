package links

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/obsbridge/internal/match"
	"github.com/untoldecay/obsbridge/internal/types"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "links.json"), "run1", nil)
	links, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Fatalf("got %d links, want 0", len(links))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.json")
	s := NewStore(path, "run1", nil)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	in := []*types.Link{
		{MdID: "md-a", RemID: "rem-a", Score: 0.93, CreatedAt: now, LastScoredAt: now},
		{MdID: "md-b", RemID: "rem-b", Score: 0.80, CreatedAt: now, LastScoredAt: now,
			LastSyncedAt: now, LastDirection: types.DirectionMdToRem},
	}
	if err := s.Save(in, 0.75, match.AlgorithmHungarian); err != nil {
		t.Fatal(err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d links, want 2", len(out))
	}
	if out[0].MdID != "md-a" || out[0].Score != 0.93 || !out[0].CreatedAt.Equal(now) {
		t.Errorf("link[0] = %+v", out[0])
	}
	if out[1].LastDirection != types.DirectionMdToRem || !out[1].LastSyncedAt.Equal(now) {
		t.Errorf("link[1] = %+v", out[1])
	}
}

func TestLoadQuarantinesDuplicateEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.json")
	s := NewStore(path, "run1", nil)

	// Two records fight over rem-a; first in file order wins.
	in := []*types.Link{
		{MdID: "md-a", RemID: "rem-a"},
		{MdID: "md-b", RemID: "rem-a"},
		{MdID: "md-c", RemID: "rem-c"},
	}
	if err := s.Save(in, 0.75, match.AlgorithmHungarian); err != nil {
		t.Fatal(err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d links, want 2", len(out))
	}
	if out[0].MdID != "md-a" || out[1].MdID != "md-c" {
		t.Errorf("kept %s and %s, want md-a and md-c", out[0].MdID, out[1].MdID)
	}
}

func TestSaveWarnsOnForeignRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.json")

	first := NewStore(path, "run1", nil)
	if err := first.Save(nil, 0.75, match.AlgorithmGreedy); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	second := NewStore(path, "run2", logger)
	if err := second.Save(nil, 0.75, match.AlgorithmGreedy); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("another run")) {
		t.Errorf("no concurrency warning logged: %s", buf.String())
	}

	// Same run id is quiet.
	buf.Reset()
	if err := second.Save(nil, 0.75, match.AlgorithmGreedy); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected warning: %s", buf.String())
	}
}
