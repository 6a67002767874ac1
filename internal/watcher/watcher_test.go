package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReportsChangedFile(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "rules.yaml")
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(watched, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("a"), 0o644))

	changed := make(chan string, 4)
	w := New([]string{watched}, func(path string) { changed <- path }, zerolog.Nop()).
		WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Watch(ctx) }()

	// Give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(other, []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(watched, []byte("b"), 0o644))

	select {
	case path := <-changed:
		assert.Equal(t, watched, path)
	case <-time.After(5 * time.Second):
		t.Fatal("change not reported")
	}

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestWatchMissingDirectory(t *testing.T) {
	w := New([]string{filepath.Join(t.TempDir(), "gone", "rules.yaml")}, func(string) {}, zerolog.Nop())
	assert.Error(t, w.Watch(context.Background()))
}
