// Package fs stores notes as markdown files with YAML frontmatter in a directory.
//
// Each note is one <id>.md file. The frontmatter carries createdAt and updatedAt
// in epoch milliseconds; every other key is preserved across writes. Snapshots
// are rebuilt by rescanning the directory after each write and, while someone is
// subscribed, whenever the directory changes on disk.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/jot/pkg/adapters/hub"
	"github.com/aretw0/jot/pkg/adapters/internal/ids"
	"github.com/aretw0/jot/pkg/core"
	"github.com/aretw0/jot/pkg/git"
)

const (
	// DefaultPattern selects the markdown files directly under the root.
	DefaultPattern = "*.md"
	// DefaultSystemDir holds the cache and is excluded from scans.
	DefaultSystemDir = ".jot"

	noteExt = ".md"
)

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	MustExist bool
	ReadOnly  bool
	Versioned bool   // commit every write with git
	AutoInit  bool   // git init when Versioned and Path is not a repository yet
	Watch     bool   // rescan on filesystem changes while subscribed
	Pattern   string // doublestar pattern relative to Path, e.g. "**/*.md"
	SystemDir string
	Logger    *slog.Logger

	// ErrorHandler receives errors from background work such as the watcher.
	ErrorHandler func(error)

	AuthorName  string
	AuthorEmail string
}

// Repository implements core.Store on top of a directory.
type Repository struct {
	Path   string
	config Config
	git    *git.Client
	cache  *cache
	hub    *hub.Hub
	ids    *ids.Generator
	log    *slog.Logger

	writeMu sync.Mutex // serializes file writes and their commits
	scanMu  sync.Mutex // orders scans with their publications
	watchMu sync.Mutex // held while the watcher starts or stops

	mu            sync.RWMutex
	watch         stopper
	watcherActive bool
	lastScan      *time.Time
	scans         int
	closed        bool
}

type stopper interface {
	Stop(ctx context.Context) error
}

// NewRepository creates a new filesystem-backed repository. Call Initialize
// before using it.
func NewRepository(config Config) *Repository {
	if config.Pattern == "" {
		config.Pattern = DefaultPattern
	}
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	client := git.NewClient(config.Path, config.SystemDir+".lock", config.Logger)
	client.AuthorName = config.AuthorName
	client.AuthorEmail = config.AuthorEmail

	return &Repository{
		Path:   config.Path,
		config: config,
		git:    client,
		cache:  newCache(config.Path, config.SystemDir),
		hub:    hub.New(config.Logger),
		ids:    ids.NewGenerator(),
		log:    config.Logger,
	}
}

// Initialize prepares the directory and, in versioned mode, the git repository.
func (r *Repository) Initialize(ctx context.Context) error {
	if !doublestar.ValidatePattern(r.config.Pattern) {
		return fmt.Errorf("invalid include pattern %q", r.config.Pattern)
	}
	if ok, _ := doublestar.Match(r.config.Pattern, "note"+noteExt); !ok && !r.config.ReadOnly {
		return fmt.Errorf("include pattern %q does not match new notes created at the root", r.config.Pattern)
	}

	if r.config.MustExist || r.config.ReadOnly {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("notes path does not exist: %s", r.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("notes path is not a directory: %s", r.Path)
		}
	} else if err := os.MkdirAll(r.Path, 0755); err != nil {
		return fmt.Errorf("failed to create notes directory: %w", err)
	}

	if !r.config.Versioned || r.config.ReadOnly {
		return nil
	}

	if !git.IsInstalled() {
		return fmt.Errorf("git is not installed")
	}

	wasNewRepo := false
	if !r.git.IsRepo() {
		if !r.config.AutoInit {
			return fmt.Errorf("path is not a git repository: %s", r.Path)
		}
		if err := r.git.Init(ctx); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
		wasNewRepo = true
	}

	mod, err := r.ensureIgnore()
	if err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}
	if mod && wasNewRepo {
		if err := r.git.Add(ctx, ".gitignore"); err != nil {
			return fmt.Errorf("failed to add .gitignore: %w", err)
		}
		if err := r.git.Commit(ctx, git.FormatMessage(git.CommitTypeChore, "", "ignore "+r.config.SystemDir, "")); err != nil {
			return fmt.Errorf("failed to commit .gitignore: %w", err)
		}
	}
	return nil
}

// ensureIgnore keeps the system directory and the lock file out of git.
func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	entries := []string{r.config.SystemDir + "/", r.config.SystemDir + ".lock"}

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(content), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, e := range entries {
		if !present[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return false, err
		}
	}
	if _, err := f.WriteString(strings.Join(missing, "\n") + "\n"); err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe rescans the directory, starts the watcher if enabled, and delivers
// the current list followed by every change.
func (r *Repository) Subscribe(ctx context.Context, fn func([]core.Note)) (core.Unsubscribe, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, core.NewStoreError(core.OpSubscribe, "", core.ErrUnavailable)
	}

	if err := r.refresh(ctx); err != nil {
		return nil, core.NewStoreError(core.OpSubscribe, "", err)
	}
	if r.config.Watch {
		if err := r.startWatcher(); err != nil {
			return nil, core.NewStoreError(core.OpSubscribe, "", err)
		}
	}
	return r.hub.Subscribe(ctx, fn), nil
}

// Create writes a new note file and returns its id.
func (r *Repository) Create(ctx context.Context, f core.CreateFields) (string, error) {
	if r.config.ReadOnly {
		return "", core.NewStoreError(core.OpCreate, "", core.ErrReadOnly)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	id := r.ids.New()
	if err := r.writeNote(ctx, id, newDocument(f), git.FormatMessage(git.CommitTypeDocs, id, "create", "")); err != nil {
		return "", core.NewStoreError(core.OpCreate, id, err)
	}
	r.log.Debug("note created", "id", id)
	r.publishAfterWrite(ctx, core.OpCreate, id)
	return id, nil
}

// MergeUpdate replaces the body and updatedAt of an existing note. createdAt and
// any other frontmatter keys are left as they are.
func (r *Repository) MergeUpdate(ctx context.Context, id string, f core.UpdateFields) error {
	if r.config.ReadOnly {
		return core.NewStoreError(core.OpUpdate, id, core.ErrReadOnly)
	}
	path, err := r.notePath(id)
	if err != nil {
		return core.NewStoreError(core.OpUpdate, id, err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return core.NewStoreError(core.OpUpdate, id, core.ErrNotFound)
	}
	if err != nil {
		return core.NewStoreError(core.OpUpdate, id, fmt.Errorf("failed to read note: %w", err))
	}
	doc, err := parseDocument(data)
	if err != nil {
		return core.NewStoreError(core.OpUpdate, id, err)
	}
	if _, ok := doc.Meta[keyCreatedAt]; !ok {
		if info, statErr := os.Stat(path); statErr == nil {
			doc.Meta[keyCreatedAt] = core.Millis(info.ModTime())
		}
	}

	if err := r.writeNote(ctx, id, doc.merged(f), git.FormatMessage(git.CommitTypeDocs, id, "update", "")); err != nil {
		return core.NewStoreError(core.OpUpdate, id, err)
	}
	r.publishAfterWrite(ctx, core.OpUpdate, id)
	return nil
}

// Delete removes the note file.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if r.config.ReadOnly {
		return core.NewStoreError(core.OpDelete, id, core.ErrReadOnly)
	}
	path, err := r.notePath(id)
	if err != nil {
		return core.NewStoreError(core.OpDelete, id, err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return core.NewStoreError(core.OpDelete, id, core.ErrNotFound)
	}

	if r.config.Versioned {
		if err := r.commitRemoval(ctx, id); err != nil {
			return core.NewStoreError(core.OpDelete, id, err)
		}
	} else if err := os.Remove(path); err != nil {
		return core.NewStoreError(core.OpDelete, id, fmt.Errorf("failed to delete note: %w", err))
	}
	r.log.Debug("note deleted", "id", id)
	r.publishAfterWrite(ctx, core.OpDelete, id)
	return nil
}

// Get reads a single note straight from disk.
func (r *Repository) Get(ctx context.Context, id string) (core.Note, error) {
	path, err := r.notePath(id)
	if err != nil {
		return core.Note{}, err
	}
	return readNote(path, id)
}

// List rescans the directory and returns the notes ordered by id.
func (r *Repository) List(ctx context.Context) ([]core.Note, error) {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()
	return r.scan(ctx)
}

// Close stops the watcher and every subscriber.
func (r *Repository) Close() error {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	watch := r.watch
	r.watch = nil
	r.mu.Unlock()

	var err error
	if watch != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = watch.Stop(ctx)
		cancel()
	}
	r.hub.Close()
	return err
}

func (r *Repository) writeNote(ctx context.Context, id string, doc document, msg string) error {
	path, err := r.notePath(id)
	if err != nil {
		return err
	}
	data, err := serializeDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize note: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if r.config.Versioned {
		return r.commit(ctx, id+noteExt, msg)
	}
	return nil
}

func (r *Repository) commit(ctx context.Context, file, msg string) error {
	unlock, err := r.git.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()

	if err := r.git.Add(ctx, file); err != nil {
		return fmt.Errorf("failed to git add: %w", err)
	}
	changed, err := r.git.Status(ctx, file)
	if err != nil {
		return fmt.Errorf("failed to git status: %w", err)
	}
	if changed == "" {
		return nil
	}
	if err := r.git.Commit(ctx, msg); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	return nil
}

// commitRemoval deletes a note through git. A file git never tracked is just
// removed from disk.
func (r *Repository) commitRemoval(ctx context.Context, id string) error {
	file := id + noteExt
	unlock, err := r.git.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()

	if err := r.git.Rm(ctx, file); err != nil {
		r.log.Debug("git rm failed, removing untracked note", "id", id, "error", err)
		if err := os.Remove(filepath.Join(r.Path, filepath.FromSlash(file))); err != nil {
			return fmt.Errorf("failed to delete note: %w", err)
		}
		return nil
	}
	if err := r.git.Commit(ctx, git.FormatMessage(git.CommitTypeDocs, id, "delete", "")); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	return nil
}

// publishAfterWrite rescans so subscribers see the write. A failed rescan does
// not undo the write, so it is only reported.
func (r *Repository) publishAfterWrite(ctx context.Context, op, id string) {
	if err := r.refresh(context.WithoutCancel(ctx)); err != nil {
		r.log.Warn("rescan after write failed", "op", op, "id", id, "error", err)
		r.reportError(err)
	}
}

// refresh rescans and publishes the result to subscribers.
func (r *Repository) refresh(ctx context.Context) error {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	notes, err := r.scan(ctx)
	if err != nil {
		return err
	}
	r.hub.Publish(notes)
	return nil
}

// scan walks the directory and builds the note list, reusing cached entries for
// files whose mtime did not change. The caller holds scanMu.
func (r *Repository) scan(ctx context.Context) ([]core.Note, error) {
	if err := r.cache.Load(); err != nil {
		r.log.Debug("cache load failed", "error", err)
	}

	var notes []core.Note
	seen := make(map[string]bool)

	err := filepath.WalkDir(r.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != r.Path && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != r.Path && r.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, ok := r.match(path)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		mtime := info.ModTime()
		id := strings.TrimSuffix(relPath, noteExt)
		seen[relPath] = true

		if entry, hit := r.cache.Get(relPath, mtime); hit {
			notes = append(notes, entry.Note)
			return nil
		}

		n, err := readNote(path, id)
		if err != nil {
			r.log.Warn("skipping unreadable note", "path", relPath, "error", err)
			return nil
		}
		r.cache.Set(relPath, &indexEntry{Note: n, LastModified: mtime})
		notes = append(notes, n)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", r.Path, err)
	}

	r.cache.Prune(seen)
	if !r.config.ReadOnly {
		if err := r.cache.Save(); err != nil {
			r.log.Debug("cache save failed", "error", err)
		}
	}

	slices.SortFunc(notes, func(a, b core.Note) int { return strings.Compare(a.ID, b.ID) })

	now := time.Now()
	r.mu.Lock()
	r.lastScan = &now
	r.scans++
	r.mu.Unlock()
	return notes, nil
}

// match reports whether path is a note file and returns its slash-separated
// path relative to the root.
func (r *Repository) match(path string) (string, bool) {
	if filepath.Ext(path) != noteExt || isTempFile(path) {
		return "", false
	}
	rel, err := filepath.Rel(r.Path, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	ok, err := doublestar.Match(r.config.Pattern, rel)
	if err != nil || !ok {
		return "", false
	}
	return rel, true
}

func (r *Repository) skipDir(name string) bool {
	return name == ".git" || name == r.config.SystemDir || strings.HasPrefix(name, ".")
}

// notePath maps an id to its file. Ids are relative slash paths without the
// extension and may not escape the root.
func (r *Repository) notePath(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty note id: %w", core.ErrNotFound)
	}
	rel := filepath.FromSlash(id) + noteExt
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid note id %q: %w", id, core.ErrNotFound)
	}
	return filepath.Join(r.Path, rel), nil
}

func readNote(path, id string) (core.Note, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return core.Note{}, core.ErrNotFound
	}
	if err != nil {
		return core.Note{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Note{}, fmt.Errorf("failed to read note: %w", err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		return core.Note{}, err
	}
	return doc.toNote(id, core.Millis(info.ModTime())), nil
}

func (r *Repository) reportError(err error) {
	if r.config.ErrorHandler != nil {
		r.config.ErrorHandler(err)
	}
}

var _ core.Store = (*Repository)(nil)
