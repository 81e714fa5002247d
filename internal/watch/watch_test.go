package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func acceptTxt(name string) bool { return strings.HasSuffix(name, ".txt") }

func TestClassify(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub.txt")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		op     fsnotify.Op
		want   Op
		wantOK bool
	}{
		{"create file", file, fsnotify.Create, OpUpsert, true},
		{"write file", file, fsnotify.Write, OpUpsert, true},
		{"remove file", filepath.Join(dir, "gone.txt"), fsnotify.Remove, OpRemove, true},
		{"rename away", filepath.Join(dir, "old.txt"), fsnotify.Rename, OpRemove, true},
		{"write to vanished file", filepath.Join(dir, "vanished.txt"), fsnotify.Write, OpRemove, true},
		{"chmod ignored", file, fsnotify.Chmod, 0, false},
		{"directory ignored", sub, fsnotify.Create, 0, false},
		{"hidden ignored", filepath.Join(dir, ".swap.txt"), fsnotify.Create, 0, false},
		{"unsupported ignored", filepath.Join(dir, "image.png"), fsnotify.Create, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, ok := classify(fsnotify.Event{Name: tt.path, Op: tt.op}, acceptTxt)
			if ok != tt.wantOK {
				t.Fatalf("classify ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (c.Op != tt.want || c.Path != tt.path) {
				t.Errorf("classify = %+v, want %s on %s", c, tt.want, tt.path)
			}
		})
	}
}

// recordingHandler collects applied changes.
type recordingHandler struct {
	mu      sync.Mutex
	changes []Change
	notify  chan struct{}
}

func (h *recordingHandler) record(c Change) {
	h.mu.Lock()
	h.changes = append(h.changes, c)
	h.mu.Unlock()
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *recordingHandler) Upsert(_ context.Context, path string) error {
	h.record(Change{Path: path, Op: OpUpsert})
	return nil
}

func (h *recordingHandler) Remove(_ context.Context, path string) error {
	h.record(Change{Path: path, Op: OpRemove})
	return nil
}

func (h *recordingHandler) waitFor(t *testing.T, want Change) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		h.mu.Lock()
		for _, c := range h.changes {
			if c == want {
				h.mu.Unlock()
				return
			}
		}
		h.mu.Unlock()
		select {
		case <-h.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %+v", want)
		}
	}
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := &recordingHandler{notify: make(chan struct{}, 1)}
	w := New(dir, acceptTxt, h, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, Change{Path: path, Op: OpUpsert})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, Change{Path: path, Op: OpRemove})
}
