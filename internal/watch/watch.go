// Package watch keeps the document library in step with a directory. File
// system events are debounced, filtered to supported documents and handed to
// a Handler as upserts and removals.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/54b3r/docqa-go/internal/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of events on
// the same file to settle.
const DefaultDebounce = 500 * time.Millisecond

// Op is the action a change requires.
type Op int

const (
	// OpUpsert means the file was created or modified.
	OpUpsert Op = iota + 1
	// OpRemove means the file was deleted or moved away.
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpUpsert:
		return "upsert"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Change is one debounced file change.
type Change struct {
	Path string
	Op   Op
}

// Handler applies changes to the library.
type Handler interface {
	Upsert(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
}

// Watcher watches a single directory (not recursively).
type Watcher struct {
	dir      string
	accept   func(name string) bool
	handler  Handler
	debounce time.Duration
}

// New returns a Watcher for dir. accept filters file names; nil accepts
// every non-hidden file.
func New(dir string, accept func(string) bool, handler Handler, debounce time.Duration) *Watcher {
	if accept == nil {
		accept = func(string) bool { return true }
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{dir: dir, accept: accept, handler: handler, debounce: debounce}
}

// Run blocks, applying changes until ctx is cancelled. Handler errors are
// logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.dir, err)
	}

	ctx = logging.With(ctx, slog.String("dir", w.dir))
	log := logging.FromContext(ctx)
	log.Info("watch: watching directory")

	pending := make(map[string]Op)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			c, ok := classify(ev, w.accept)
			if !ok {
				continue
			}
			log.Debug("watch: event", slog.String("path", c.Path), slog.String("op", c.Op.String()))
			pending[c.Path] = c.Op
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch: watcher error", slog.Any("error", err))

		case <-timer.C:
			w.flush(ctx, pending)
			clear(pending)
		}
	}
}

// flush applies pending changes in path order.
func (w *Watcher) flush(ctx context.Context, pending map[string]Op) {
	log := logging.FromContext(ctx)
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		var err error
		switch pending[p] {
		case OpUpsert:
			err = w.handler.Upsert(ctx, p)
		case OpRemove:
			err = w.handler.Remove(ctx, p)
		}
		if err != nil {
			log.Error("watch: apply change failed",
				slog.String("path", p),
				slog.String("op", pending[p].String()),
				slog.Any("error", err),
			)
		}
	}
}

// classify maps a file system event to a Change. Hidden files, directories,
// rejected names and attribute-only changes are ignored.
func classify(ev fsnotify.Event, accept func(string) bool) (Change, bool) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || !accept(name) {
		return Change{}, false
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		return Change{Path: ev.Name, Op: OpRemove}, true

	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			// Gone again before we looked.
			return Change{Path: ev.Name, Op: OpRemove}, true
		}
		if info.IsDir() {
			return Change{}, false
		}
		return Change{Path: ev.Name, Op: OpUpsert}, true
	}
	return Change{}, false
}
