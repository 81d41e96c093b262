package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/untoldecay/obsbridge/internal/indexstore"
	"github.com/untoldecay/obsbridge/internal/safeio"
	"github.com/untoldecay/obsbridge/internal/vault"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the vaults and keep the markdown index fresh",
	Long: `Watch every configured vault root for markdown changes and
re-index after a short debounce. The reminders side is not polled; run sync
to reconcile.

Stops on SIGINT/SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		debounce, _ := cmd.Flags().GetDuration("debounce")

		r, err := newRuntime()
		if err != nil {
			fail(err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := runWatch(ctx, r, debounce); err != nil {
			fail(err)
		}
	},
}

func init() {
	watchCmd.Flags().Duration("debounce", 500*time.Millisecond, "quiet period before re-indexing")
	rootCmd.AddCommand(watchCmd)
}

// debouncer coalesces bursts of events into one trigger after a quiet
// period.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	fn    func()
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func runWatch(ctx context.Context, r *runtime, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	for _, v := range r.cfg.Vaults {
		if err := watchTree(watcher, v.Path, r.cfg.ExcludeDirs); err != nil {
			return fmt.Errorf("watching vault %q: %w", v.Name, err)
		}
	}

	var cache *vault.Cache
	if r.cfg.CacheEnabled {
		if c, err := vault.OpenCache(r.cachePath()); err == nil {
			cache = c
			defer c.Close()
		}
	}

	var dirtyMu sync.Mutex
	dirty := make(map[string]bool)

	reindex := func() {
		dirtyMu.Lock()
		changed := dirty
		dirty = make(map[string]bool)
		dirtyMu.Unlock()
		for path := range changed {
			if cache != nil {
				cache.Invalidate(path)
			}
		}

		lock, err := safeio.AcquireLock(ctx, r.lockPath(), r.cfg.LockTimeout)
		if err != nil {
			r.logger.Warn("skipping re-index, state is locked", "err", err)
			return
		}
		defer lock.Unlock()

		ix, err := vault.NewIndexer(r.cfg.Vaults, r.cfg.ExcludeDirs, cache, r.logger).Scan(ctx, r.runID)
		if err != nil {
			r.logger.Warn("re-index failed", "err", err)
			return
		}
		if err := indexstore.NewStore(r.mdIndexPath(), r.logger).Save(ix); err != nil {
			r.logger.Warn("persisting index failed", "err", err)
			return
		}
		fmt.Printf("%s re-indexed: %d task(s)\n", time.Now().Format("15:04:05"), ix.Meta.TaskCount)
	}
	deb := newDebouncer(debounce, reindex)
	defer deb.Stop()

	fmt.Printf("watching %d vault(s), debounce %s\n", len(r.cfg.Vaults), debounce)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("stopping")
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// New directories join the watch; markdown events mark the file
			// dirty and arm the debounce.
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = watchTree(watcher, ev.Name, r.cfg.ExcludeDirs)
					continue
				}
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			dirtyMu.Lock()
			dirty[ev.Name] = true
			dirtyMu.Unlock()
			deb.Trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", "err", err)
		}
	}
}

// watchTree adds root and every non-hidden, non-excluded subdirectory.
func watchTree(watcher *fsnotify.Watcher, root string, exclude []string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		for _, e := range exclude {
			if name == e {
				return filepath.SkipDir
			}
		}
		return watcher.Add(path)
	})
}
