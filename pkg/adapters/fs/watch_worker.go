package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long the directory must stay quiet before a rescan.
const watchDebounce = 50 * time.Millisecond

// startWatcher runs the fs watcher under a supervisor that restarts it on
// failure. It is a no-op when the watcher is already running.
func (r *Repository) startWatcher() error {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()

	r.mu.RLock()
	running := r.closed || r.watch != nil
	r.mu.RUnlock()
	if running {
		return nil
	}

	spec := supervisor.Spec{
		Name: "fs-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return newWatchWorker(r, watchDebounce), nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2,
			ResetDuration:   time.Minute,
			MaxRestarts:     5,
			MaxDuration:     time.Minute,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("fs-watch", supervisor.StrategyOneForOne, spec)
	if err := sup.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	r.mu.Lock()
	r.watch = sup
	r.mu.Unlock()
	return nil
}

type watchWorker struct {
	*worker.BaseWorker
	repo    *Repository
	delay   time.Duration
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

func newWatchWorker(repo *Repository, delay time.Duration) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("fs-watcher"),
		repo:       repo,
		delay:      delay,
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.addTree(watcher, w.repo.Path); err != nil {
		_ = watcher.Close()
		return err
	}
	if w.repo.config.Versioned {
		_ = watcher.Add(filepath.Join(w.repo.Path, ".git"))
	}

	w.watcher = watcher
	w.repo.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

// recursive reports whether the include pattern reaches into subdirectories.
func (w *watchWorker) recursive() bool {
	return strings.Contains(w.repo.config.Pattern, "/")
}

// addTree watches dir, and its subdirectories when the pattern is recursive.
func (w *watchWorker) addTree(watcher *fsnotify.Watcher, dir string) error {
	if !w.recursive() {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.repo.Path && w.repo.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// relevant filters out events that cannot change the note list.
func (w *watchWorker) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || isTempFile(name) {
		return false
	}
	if _, ok := w.repo.match(event.Name); ok {
		return true
	}
	// A subdirectory may have appeared or vanished.
	return w.recursive() && filepath.Ext(name) == ""
}

// handleGitLockEvent tracks .git/index.lock so rescans pause while git is
// rewriting the tree. It reports whether the event was a lock event.
func (w *watchWorker) handleGitLockEvent(event fsnotify.Event, gitLocked *bool) bool {
	if filepath.Base(event.Name) != "index.lock" || filepath.Base(filepath.Dir(event.Name)) != ".git" {
		return false
	}
	switch {
	case event.Has(fsnotify.Create):
		*gitLocked = true
		w.repo.log.Debug("git operation detected, pausing watcher")
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		*gitLocked = false
		w.repo.log.Debug("git operation finished, rescanning")
	}
	return true
}

// rescanAfterGitUnlock picks up whatever changed while git held the lock.
func (w *watchWorker) rescanAfterGitUnlock(ctx context.Context) {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		if err := w.repo.refresh(ctx); err != nil {
			w.repo.log.Error("rescan failed", "error", err)
			return err
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		w.repo.reportError(fmt.Errorf("rescan after git unlock: %w", err))
	}))
}

func (w *watchWorker) rescan(ctx context.Context) {
	if err := w.repo.refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.repo.log.Error("rescan failed", "error", err)
		w.repo.reportError(err)
	}
}

func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if w.repo.log.Enabled(ctx, slog.LevelDebug) {
				w.repo.log.Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				w.repo.log.Error("watcher panic", "error", err)
			}
		}
	}()
	defer w.repo.setWatcherActive(false)
	defer w.watcher.Close()

	return w.mainEventLoop(ctx)
}

// mainEventLoop collapses bursts of events into one rescan once the directory
// has been quiet for the debounce delay.
func (w *watchWorker) mainEventLoop(ctx context.Context) error {
	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	var gitLocked bool
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.repo.log.Debug("event received", "name", event.Name, "op", event.Op.String())

			if w.handleGitLockEvent(event, &gitLocked) {
				if !gitLocked {
					w.rescanAfterGitUnlock(ctx)
				}
				continue
			}
			if gitLocked || !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) && w.recursive() {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(w.watcher, event.Name); err != nil {
						w.repo.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			timer.Reset(w.delay)

		case <-timer.C:
			w.rescan(ctx)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.repo.log.Error("fsnotify error", "error", wErr)
			w.repo.reportError(wErr)
		}
	}
}
