package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) cb(_ context.Context, path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) has(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.paths {
		if p == path {
			return true
		}
	}
	return false
}

func (r *recorder) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.paths {
		if p == path {
			n++
		}
	}
	return n
}

func startWatch(t *testing.T, root string, patterns []string) *recorder {
	t.Helper()
	ignore, err := CompileIgnore(patterns)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	rec := &recorder{}
	go func() {
		_ = Watch(ctx, root, ignore, logger, rec.cb)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatcher_NewFileReported(t *testing.T) {
	vault := t.TempDir()
	rec := startWatch(t, vault, DefaultIgnore)

	_ = os.WriteFile(filepath.Join(vault, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("new.md")
	}, "expected callback for new.md")
}

func TestWatcher_ModifyNotReported(t *testing.T) {
	vault := t.TempDir()
	existing := filepath.Join(vault, "old.md")
	_ = os.WriteFile(existing, []byte("# Old"), 0o644)
	rec := startWatch(t, vault, DefaultIgnore)

	_ = os.WriteFile(existing, []byte("# Changed"), 0o644)
	_ = os.WriteFile(filepath.Join(vault, "marker.md"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("marker.md")
	}, "expected callback for marker.md")
	if rec.has("old.md") {
		t.Error("modification of an existing file must not be reported")
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	vault := t.TempDir()
	rec := startWatch(t, vault, DefaultIgnore)

	subDir := filepath.Join(vault, "Clippings")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("Clippings/deep.md")
	}, "file in new subdir not reported")
}

func TestWatcher_MovedInDirReportsFiles(t *testing.T) {
	vault := t.TempDir()
	outside := t.TempDir()
	src := filepath.Join(outside, "batch")
	_ = os.MkdirAll(src, 0o755)
	_ = os.WriteFile(filepath.Join(src, "a.md"), []byte("a"), 0o644)

	rec := startWatch(t, vault, DefaultIgnore)

	if err := os.Rename(src, filepath.Join(vault, "batch")); err != nil {
		t.Skipf("rename across temp dirs unsupported: %v", err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("batch/a.md")
	}, "file inside moved-in dir not reported")
}

func TestWatcher_IgnoredDirs(t *testing.T) {
	vault := t.TempDir()
	_ = os.MkdirAll(filepath.Join(vault, ".obsidian"), 0o755)
	rec := startWatch(t, vault, append([]string{"Templates/**"}, DefaultIgnore...))

	_ = os.WriteFile(filepath.Join(vault, ".obsidian", "workspace.json"), []byte("{}"), 0o644)
	_ = os.MkdirAll(filepath.Join(vault, "Templates"), 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(vault, "Templates", "t.md"), []byte("t"), 0o644)
	_ = os.WriteFile(filepath.Join(vault, "visible.md"), []byte("v"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("visible.md")
	}, "expected callback for visible.md")
	if rec.has(".obsidian/workspace.json") || rec.has("Templates/t.md") {
		t.Error("ignored paths reported")
	}
	if rec.count("visible.md") != 1 {
		t.Errorf("visible.md reported %d times", rec.count("visible.md"))
	}
}

func TestIgnoreMatch(t *testing.T) {
	ig, err := CompileIgnore([]string{".obsidian/**", "*.tmp", "Archive/*/old/**"})
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		".obsidian":                true,
		".obsidian/plugins/x.json": true,
		"note.tmp":                 true,
		"dir/note.tmp":             false,
		"Archive/2023/old":         true,
		"Archive/2023/old/a.md":    true,
		"Archive/2023/new/a.md":    false,
		"note.md":                  false,
	}
	for path, want := range cases {
		if got := ig.Match(path); got != want {
			t.Errorf("Match(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestCompileIgnore_BadPattern(t *testing.T) {
	if _, err := CompileIgnore([]string{"[unclosed"}); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestWatcher_RenameOverExistingNotReported(t *testing.T) {
	vault := t.TempDir()
	existing := filepath.Join(vault, "old.md")
	_ = os.WriteFile(existing, []byte("# Old"), 0o644)
	rec := startWatch(t, vault, DefaultIgnore)

	// Editor-style atomic save: write a temp file, rename it over the note.
	tmp := filepath.Join(vault, ".old.md.tmp")
	_ = os.WriteFile(tmp, []byte("# Old\nedited"), 0o644)
	if err := os.Rename(tmp, existing); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(vault, "marker.md"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("marker.md")
	}, "expected callback for marker.md")
	if rec.has("old.md") {
		t.Error("replacing an existing note must not be reported")
	}
}

func TestWatcher_ReplacingReportedFileNotReportedAgain(t *testing.T) {
	vault := t.TempDir()
	rec := startWatch(t, vault, DefaultIgnore)

	note := filepath.Join(vault, "new.md")
	_ = os.WriteFile(note, []byte("# New"), 0o644)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("new.md")
	}, "expected callback for new.md")

	// The sorter rewrites the note the same way.
	tmp := filepath.Join(vault, ".imagesorter-tmp-1")
	_ = os.WriteFile(tmp, []byte("# New\nrewritten"), 0o644)
	if err := os.Rename(tmp, note); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(vault, "marker.md"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("marker.md")
	}, "expected callback for marker.md")
	if n := rec.count("new.md"); n != 1 {
		t.Errorf("new.md reported %d times, want 1", n)
	}
}

func TestWatcher_RecreatedAfterRemoveReported(t *testing.T) {
	vault := t.TempDir()
	existing := filepath.Join(vault, "old.md")
	_ = os.WriteFile(existing, []byte("# Old"), 0o644)
	rec := startWatch(t, vault, DefaultIgnore)

	if err := os.Remove(existing); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(existing, []byte("# Again"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("old.md")
	}, "a note created after removal must be reported")
}

func TestKnownFiles_Forget(t *testing.T) {
	k := knownFiles{"a.md": {}, "dir/b.md": {}, "dir/sub/c.md": {}, "dirx/d.md": {}}

	k.forget("a.md")
	k.forget("dir")
	if len(k) != 1 {
		t.Fatalf("known = %v, want only dirx/d.md", k)
	}
	if _, ok := k["dirx/d.md"]; !ok {
		t.Error("sibling with shared prefix was dropped")
	}
}
