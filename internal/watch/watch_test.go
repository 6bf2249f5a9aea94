package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosub/vpadmin/internal/watch"
)

func TestWatcherDebouncesMarkdownChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tech"), 0o755))

	changed := make(chan struct{}, 10)
	w, err := watch.New(root, func() { changed <- struct{}{} }, nil)
	require.NoError(t, err)
	w.Debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Non-Markdown files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(root, "tech", "notes.txt"), []byte("x"), 0o644))
	select {
	case <-changed:
		t.Fatal("unexpected callback for a non-Markdown file")
	case <-time.After(300 * time.Millisecond):
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "tech", "a.md"), []byte("v"), 0o644))
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no callback after writing a Markdown file")
	}
	select {
	case <-changed:
		t.Fatal("burst was not debounced into one callback")
	case <-time.After(300 * time.Millisecond):
	}
}
