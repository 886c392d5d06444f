package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/jot/pkg/adapters/fs"
	"github.com/aretw0/jot/pkg/adapters/memory"
	"github.com/aretw0/jot/pkg/adapters/remote"
	"github.com/aretw0/jot/pkg/adapters/sqlite"
	"github.com/aretw0/jot/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterFS     = "fs"
	AdapterSQLite = "sqlite"
	AdapterMemory = "memory"
	AdapterRemote = "remote"
)

// ErrUnknownAdapter is returned for adapter names OpenStore does not know.
var ErrUnknownAdapter = errors.New("unknown adapter")

// DetectAdapter derives the adapter from a store URI and returns the part of the
// URI the adapter consumes:
//
//	mem: | memory:              memory
//	ws:// wss:// http:// https://  remote
//	sqlite:<path> | *.db | *.sqlite | *.sqlite3  sqlite
//	file:<path> | <path>        fs
func DetectAdapter(uri string) (adapter, target string) {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasPrefix(lower, "mem:"), strings.HasPrefix(lower, "memory:"):
		return AdapterMemory, ""
	case strings.HasPrefix(lower, "ws://"), strings.HasPrefix(lower, "wss://"),
		strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return AdapterRemote, uri
	case strings.HasPrefix(lower, "sqlite:"):
		return AdapterSQLite, uri[len("sqlite:"):]
	case strings.HasPrefix(lower, "file:"):
		return AdapterFS, uri[len("file:"):]
	}
	switch strings.ToLower(filepath.Ext(uri)) {
	case ".db", ".sqlite", ".sqlite3":
		return AdapterSQLite, uri
	}
	return AdapterFS, uri
}

// OpenStore opens the store named by uri.
//
//	store, err := platform.OpenStore(ctx, "sqlite:notes.db")
//
// The adapter is derived from the URI unless WithAdapter forces one.
func OpenStore(ctx context.Context, uri string, opts ...Option) (core.Store, error) {
	return openStore(ctx, uri, resolveOptions(opts))
}

func openStore(ctx context.Context, uri string, o *options) (core.Store, error) {
	if o.store != nil {
		return o.store, nil
	}

	adapter, target := DetectAdapter(uri)
	if o.adapter != "" && o.adapter != adapter {
		adapter = o.adapter
		target = strings.TrimPrefix(uri, adapter+":")
	}

	switch adapter {
	case AdapterFS:
		return openFS(ctx, target, o)
	case AdapterSQLite:
		return openSQLite(ctx, target, o)
	case AdapterMemory:
		return memory.New(o.logger), nil
	case AdapterRemote:
		return remote.Dial(ctx, target, remote.ClientConfig{
			Token:       o.stringValue("token"),
			Logger:      o.logger,
			DialTimeout: o.durationValue("dial_timeout"),
		})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, adapter)
}

// localPath applies dev safety to the path of a local store.
func localPath(path string, o *options) string {
	readOnly := o.boolValue("read_only", false)
	devSafety := o.boolValue("dev_safety", true)
	bypass := readOnly || !devSafety

	useTemp := o.boolValue("temp_dir", false) || (IsDevRun() && !bypass)
	resolved := ResolvePath(path, useTemp)

	if IsDevRun() {
		switch {
		case bypass && readOnly:
			o.logger.Debug("running read-only outside the dev sandbox", "path", resolved)
		case bypass:
			o.logger.Warn("running outside the dev sandbox", "path", resolved)
		default:
			o.logger.Debug("running inside the dev sandbox", "path", resolved)
		}
	}
	if useTemp && resolved != path {
		o.logger.Warn("store redirected to temp dir", "original_path", path, "resolved_path", resolved)
	}
	return resolved
}

func openFS(ctx context.Context, path string, o *options) (core.Store, error) {
	resolved := localPath(path, o)

	versioned, ok := o.config["versioning"].(bool)
	if !ok {
		_, err := os.Stat(filepath.Join(resolved, ".git"))
		versioned = err == nil
		if versioned {
			o.logger.Debug("detected git repository, versioning writes", "path", resolved)
		}
	}

	handler, _ := o.config["watcher_error_handler"].(func(error))
	repo := fs.NewRepository(fs.Config{
		Path:         resolved,
		MustExist:    o.boolValue("must_exist", false),
		ReadOnly:     o.boolValue("read_only", false),
		Versioned:    versioned,
		AutoInit:     o.boolValue("auto_init", false),
		Watch:        o.boolValue("watch", true),
		Pattern:      o.stringValue("pattern"),
		SystemDir:    o.stringValue("system_dir"),
		Logger:       o.logger,
		ErrorHandler: handler,
		AuthorName:   o.stringValue("author_name"),
		AuthorEmail:  o.stringValue("author_email"),
	})
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func openSQLite(ctx context.Context, path string, o *options) (core.Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: empty database path")
	}
	return sqlite.Open(ctx, sqlite.Config{
		Path:         localPath(path, o),
		PollInterval: o.durationValue("poll_interval"),
		Logger:       o.logger,
	})
}
