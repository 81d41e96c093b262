// Package vault walks markdown vault trees, extracts tasks, and performs
// the line-level file mutations the reconcile engine asks for.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/untoldecay/obsbridge/internal/config"
	"github.com/untoldecay/obsbridge/internal/identity"
	"github.com/untoldecay/obsbridge/internal/safeio"
	"github.com/untoldecay/obsbridge/internal/taskline"
	"github.com/untoldecay/obsbridge/internal/types"
)

// Indexer scans configured vaults into a task index.
type Indexer struct {
	Vaults  []config.Vault
	Exclude []string
	Cache   *Cache // optional
	Logger  *slog.Logger
}

// NewIndexer returns an indexer over the given vaults.
func NewIndexer(vaults []config.Vault, exclude []string, cache *Cache, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{Vaults: vaults, Exclude: exclude, Cache: cache, Logger: logger}
}

type fileResult struct {
	path  string
	tasks []*types.Task
	err   error
}

// Scan walks every vault and produces the markdown index. Files are parsed
// in parallel; results are merged in path order so two scans of an
// unchanged vault are identical modulo generated_at.
func (ix *Indexer) Scan(ctx context.Context, runID string) (*types.Index, error) {
	index := types.NewIndex(runID)

	for _, v := range ix.Vaults {
		files, err := ix.listFiles(v.Path)
		if err != nil {
			return nil, fmt.Errorf("walking vault %q: %w", v.Name, err)
		}
		index.Meta.SourceCount += len(files)

		results := make([]fileResult, len(files))
		sem := make(chan struct{}, runtime.NumCPU())
		var wg sync.WaitGroup
		for i, rel := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, rel string) {
				defer wg.Done()
				defer func() { <-sem }()
				tasks, err := ix.parseFile(v, rel)
				results[i] = fileResult{path: rel, tasks: tasks, err: err}
			}(i, rel)
		}
		wg.Wait()

		for _, r := range results {
			if r.err != nil {
				ix.Logger.Warn("skipping unreadable file", "vault", v.Name, "file", r.path, "err", r.err)
				continue
			}
			for _, t := range r.tasks {
				if existing := index.Get(t.ID); existing != nil {
					ix.Logger.Warn("duplicate task id quarantined", "id", t.ID, "file", r.path)
					continue
				}
				index.Add(t)
			}
		}
	}
	return index, nil
}

// listFiles enumerates .md files under root, skipping dot-directories and
// configured exclusions, sorted by relative path.
func (ix *Indexer) listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || ix.excluded(name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (ix *Indexer) excluded(dir string) bool {
	for _, e := range ix.Exclude {
		if dir == e {
			return true
		}
	}
	return false
}

// parseFile extracts every task from one file, consulting the cache first.
func (ix *Indexer) parseFile(v config.Vault, rel string) ([]*types.Task, error) {
	full := filepath.Join(v.Path, rel)
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}
	// UTF-8 with replacement: a broken span may lose its task but must not
	// break the walk.
	text := strings.ToValidUTF8(string(content), "�")
	digest := ContentHash(content)

	if ix.Cache != nil {
		if tasks, ok := ix.Cache.Get(full, info.Size(), info.ModTime(), digest); ok {
			return tasks, nil
		}
	}

	mtime := info.ModTime().UTC()
	tasks := ParseContent(v.Name, rel, text, mtime)

	if ix.Cache != nil {
		ix.Cache.Put(full, info.Size(), info.ModTime(), digest, tasks)
	}
	return tasks, nil
}

// ParseContent extracts tasks from file text. Exposed for the watch command
// and tests; identity assignment happens here so ids are stable for a given
// content regardless of caller.
func ParseContent(vaultName, rel, text string, mtime time.Time) []*types.Task {
	var tasks []*types.Task
	state := identity.NewOrdinalState()
	w := taskline.NewWalker()
	for i, line := range splitLines(text) {
		if !w.Line(line) {
			continue
		}
		p, ok := taskline.Parse(line)
		if !ok {
			continue
		}
		t := &types.Task{
			Origin:     types.OriginMarkdown,
			Title:      p.Title,
			Status:     p.Status,
			Due:        p.Due,
			Scheduled:  p.Scheduled,
			Start:      p.Start,
			DoneOn:     p.DoneOn,
			Priority:   p.Priority,
			Recurrence: p.Recurrence,
			Tags:       p.Tags,
			Anchor:     p.Anchor,
			Location: types.Location{
				Vault:    vaultName,
				FilePath: rel,
				Line:     i + 1,
			},
			ModifiedAt: mtime,
			CreatedAt:  mtime,
		}
		t.Digest = t.ContentDigest()
		t.ID = identity.ForMarkdown(vaultName, rel, t, state)
		tasks = append(tasks, t)
	}
	return tasks
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// LineEdit is one pending mutation to a file: a rewrite or a deletion of an
// exact line.
type LineEdit struct {
	Line    int    // 1-based
	OldText string // expected current text; mismatch skips the edit
	NewText string
	Delete  bool
}

// ErrLineMismatch reports that a file changed underneath a planned edit.
type ErrLineMismatch struct {
	Path string
	Line int
}

func (e *ErrLineMismatch) Error() string {
	return fmt.Sprintf("%s:%d no longer matches the planned edit", e.Path, e.Line)
}

// ApplyEdits collapses all edits to one file into a single atomic replace.
// Line numbers refer to the pre-edit file. Each edit is verified against
// its expected old text; a mismatch fails that edit (returned in failed)
// without blocking the others. The rewritten file keeps its line-ending
// style and ends with a single trailing newline.
func ApplyEdits(path string, edits []LineEdit) (failed []LineEdit, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return edits, fmt.Errorf("reading %s: %w", path, err)
	}
	eol := taskline.DetectLineEnding(content)
	lines := splitLines(strings.ToValidUTF8(string(content), "�"))

	deleted := make(map[int]bool)
	applied := false
	for _, e := range edits {
		i := e.Line - 1
		if i < 0 || i >= len(lines) || lines[i] != e.OldText {
			failed = append(failed, e)
			continue
		}
		if e.Delete {
			deleted[i] = true
		} else {
			lines[i] = e.NewText
		}
		applied = true
	}
	if !applied {
		return failed, nil
	}

	var b strings.Builder
	for i, line := range lines {
		if deleted[i] {
			continue
		}
		b.WriteString(line)
		b.WriteString(eol)
	}
	if err := safeio.AtomicReplace(path, []byte(b.String()), 0644); err != nil {
		return edits, err
	}
	return failed, nil
}

// AppendLine appends a task line to path, creating the file if needed, and
// returns the 1-based line number it landed on.
func AppendLine(path, line string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	eol := taskline.DetectLineEnding(content)
	lines := splitLines(strings.ToValidUTF8(string(content), "�"))
	lines = append(lines, line)

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString(eol)
	}
	if err := safeio.AtomicReplace(path, []byte(b.String()), 0644); err != nil {
		return 0, err
	}
	return len(lines), nil
}

// ReadLines returns the file's lines for anchor collection and edit
// verification.
func ReadLines(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return splitLines(strings.ToValidUTF8(string(content), "�")), nil
}
