// Package watcher reports files created inside a vault.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultIgnore lists vault-relative globs that are never watched.
var DefaultIgnore = []string{".obsidian/**", ".trash/**", ".git/**"}

// Callback receives the vault-relative, slash-separated path of a newly
// created file. Each call runs on its own goroutine.
type Callback func(ctx context.Context, path string)

// Ignore matches vault-relative paths against a set of globs.
type Ignore []glob.Glob

// CompileIgnore compiles glob patterns. '*' stops at '/', '**' does not.
func CompileIgnore(patterns []string) (Ignore, error) {
	out := make(Ignore, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("watcher: bad ignore pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Match reports whether rel (or rel as a directory) is ignored.
func (ig Ignore) Match(rel string) bool {
	for _, g := range ig {
		if g.Match(rel) || g.Match(rel+"/") {
			return true
		}
	}
	return false
}

// Watch starts an fsnotify watcher on root and calls cb for every file
// created below it until ctx is cancelled. Writes, renames-away and removals
// are not reported.
//
// Files present at startup, or already reported, are known. A Create for a
// known path is a replacement (atomic save, sync, our own note rewrite) and
// is not reported; the path becomes new again only after a Remove or Rename.
//
// New directories created at runtime are added to the watch list, and the
// files they already contain are reported as created.
func Watch(ctx context.Context, root string, ignore Ignore, logger *slog.Logger, cb Callback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root, err = filepath.Abs(root)
	if err != nil {
		return err
	}
	known := make(knownFiles)
	if err := addDirsRecursive(w, root, root, ignore, known); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root), slog.Int("files", len(known)))

	var wg sync.WaitGroup
	defer wg.Wait()

	emit := func(absPath string) {
		rel, relErr := filepath.Rel(root, absPath)
		if relErr != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		if ignore.Match(rel) {
			return
		}
		if _, seen := known[rel]; seen {
			logger.Debug("watcher: replaced, not new", slog.String("path", rel))
			return
		}
		known[rel] = struct{}{}
		logger.Debug("watcher: created", slog.String("path", rel))
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb(ctx, rel)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if rel, relErr := filepath.Rel(root, ev.Name); relErr == nil {
					known.forget(filepath.ToSlash(rel))
				}
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}

			info, statErr := os.Stat(ev.Name)
			if statErr != nil {
				// Gone already, e.g. a temp file renamed away.
				continue
			}
			if info.IsDir() {
				if isIgnored(root, ev.Name, ignore) {
					continue
				}
				if addErr := addDirsRecursive(w, root, ev.Name, ignore, nil); addErr != nil {
					logger.Warn("watcher: add new dir failed",
						slog.String("path", ev.Name),
						slog.String("error", addErr.Error()))
					continue
				}
				logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
				walkNewDir(root, ev.Name, ignore, emit)
				continue
			}
			emit(ev.Name)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// walkNewDir reports files found in a directory that appeared at runtime.
func walkNewDir(root, dir string, ignore Ignore, emit func(string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && isIgnored(root, path, ignore) {
				return filepath.SkipDir
			}
			return nil
		}
		emit(path)
		return nil
	})
}

// knownFiles holds vault-relative paths of files that exist or were
// reported. Only the Watch loop touches it.
type knownFiles map[string]struct{}

// forget drops rel, or every path below rel when rel was a directory.
func (k knownFiles) forget(rel string) {
	if _, ok := k[rel]; ok {
		delete(k, rel)
		return
	}
	prefix := rel + "/"
	for p := range k {
		if strings.HasPrefix(p, prefix) {
			delete(k, p)
		}
	}
}

// addDirsRecursive adds dir and its non-ignored subdirectories to the
// watcher. When known is non-nil, the files found are recorded in it.
func addDirsRecursive(w *fsnotify.Watcher, root, dir string, ignore Ignore, known knownFiles) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if known != nil {
				if rel, relErr := filepath.Rel(root, path); relErr == nil {
					known[filepath.ToSlash(rel)] = struct{}{}
				}
			}
			return nil
		}
		if path != root && isIgnored(root, path, ignore) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func isIgnored(root, path string, ignore Ignore) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return ignore.Match(filepath.ToSlash(rel))
}
