// Package watch triggers a callback when Markdown files under the blog
// directory change on disk.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before calling OnChange.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a directory tree. OnChange runs at most once per settled
// burst of events.
type Watcher struct {
	Root     string
	Debounce time.Duration
	OnChange func()
	Log      *zap.Logger

	fw    *fsnotify.Watcher
	mu    sync.Mutex
	timer *time.Timer
}

// New watches root and every non-hidden directory below it.
func New(root string, onChange func(), log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{Root: root, Debounce: DefaultDebounce, OnChange: onChange, Log: log, fw: fw}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.Log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if hidden(name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if isDir(ev.Name) {
			if err := w.addTree(ev.Name); err != nil {
				w.Log.Warn("watch add", zap.String("dir", ev.Name), zap.Error(err))
			}
			w.schedule()
			return
		}
	}
	// Removed directories arrive without an extension.
	if strings.EqualFold(filepath.Ext(name), ".md") || (filepath.Ext(name) == "" && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename))) {
		w.schedule()
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, func() {
		w.Log.Debug("content changed")
		if w.OnChange != nil {
			w.OnChange()
		}
	})
}

// addTree watches dir and its non-hidden subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if hidden(d.Name()) && path != dir {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
