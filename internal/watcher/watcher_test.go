package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder collects callback paths under a lock.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff}, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(nil, []string{".jpg"}, true, func(string) {}, func(string) {})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || filepath.Clean(dirs[0]) != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}

	// Adding the same root twice is a no-op.
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 1 {
		t.Errorf("duplicate add: %v", w.Directories())
	}

	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_IngestOnCreate(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "rings")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	w := NewWatcher([]string{dir}, []string{".jpg"}, true, rec.add, nil, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(sub, "band.jpg"))
	writeFile(t, filepath.Join(sub, "notes.txt"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.snapshot()) >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	got := rec.snapshot()
	if len(got) != 1 || !strings.HasSuffix(got[0], "band.jpg") {
		t.Errorf("ingested = %v, want just band.jpg", got)
	}
}

func TestWatcher_RemoveCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "band.jpg")
	writeFile(t, path)

	var removed recorder
	w := NewWatcher([]string{dir}, []string{".jpg"}, true, nil, removed.add, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(removed.snapshot()) >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	got := removed.snapshot()
	if len(got) != 1 || !strings.HasSuffix(got[0], "band.jpg") {
		t.Errorf("removed = %v, want band.jpg", got)
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"))
	if err := os.WriteFile(filepath.Join(dir, "ignore.xyz"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	w := NewWatcher([]string{dir}, []string{".jpg"}, true, rec.add, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.SyncExistingFiles()

	got := rec.snapshot()
	if len(got) != 1 || !strings.HasSuffix(got[0], "a.jpg") {
		t.Errorf("expected one synced file a.jpg, got %v", got)
	}
}

func TestWatcher_Start_createsMissingRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "catalog")

	w := NewWatcher([]string{root}, []string{".jpg"}, true, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_NewDirectoryIngested(t *testing.T) {
	dir := t.TempDir()

	var rec recorder
	w := NewWatcher([]string{dir}, []string{".jpg", ".png"}, true, rec.add, nil, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Simulate copying a folder of product shots into the watched root.
	folder := filepath.Join(dir, "new-arrivals")
	if err := os.MkdirAll(folder, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(folder, "ring.jpg"))
	writeFile(t, filepath.Join(folder, "pendant.png"))
	if err := os.WriteFile(filepath.Join(folder, "manifest.csv"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got := rec.snapshot()
		jpg, png := false, false
		for _, p := range got {
			if strings.HasSuffix(p, "ring.jpg") {
				jpg = true
			}
			if strings.HasSuffix(p, "pendant.png") {
				png = true
			}
			if strings.HasSuffix(p, "manifest.csv") {
				t.Fatalf("manifest.csv should not be ingested: %v", got)
			}
		}
		if jpg && png {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("expected ring.jpg and pendant.png to be ingested, got %v", rec.snapshot())
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.jpg", []string{".jpg"}, true},
		{"/a/b.JPG", []string{".jpg"}, true},
		{"/a/b.gif", []string{"jpg", "png"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.jpg", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
