package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piescope/internal/image"
)

func startWatcher(t *testing.T, dir string) (*Watcher, context.CancelFunc, chan error) {
	t.Helper()
	opts := DefaultOptions()
	opts.QuietPeriod = 50 * time.Millisecond
	w, err := NewWatcher(dir, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return w, cancel, errc
}

func receive(t *testing.T, w *Watcher) Capture {
	t.Helper()
	select {
	case c, ok := <-w.Captures():
		require.True(t, ok, "capture channel closed")
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no capture delivered")
		return Capture{}
	}
}

func TestWatcher_DeliversCompletedTIFF(t *testing.T) {
	dir := t.TempDir()
	w, _, _ := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	written, err := image.SaveTIFF(filepath.Join(dir, "ion_001.tif"), image.NewGray(12, 9, image.Depth8))
	require.NoError(t, err)

	c := receive(t, w)
	require.NoError(t, c.Err)
	assert.Equal(t, written, c.Path)
	require.NotNil(t, c.Layer)
	assert.Equal(t, 12, c.Layer.Width())
	assert.Equal(t, 9, c.Layer.Height())
	assert.Equal(t, image.ModalityIon, c.Layer.Modality)
}

func TestWatcher_ReportsUndecodableFile(t *testing.T) {
	dir := t.TempDir()
	w, _, _ := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.tif"), []byte("not a tiff"), 0o644))

	c := receive(t, w)
	assert.Error(t, c.Err)
	assert.Nil(t, c.Layer)
}

func TestWatcher_CancelClosesChannel(t *testing.T) {
	w, cancel, errc := startWatcher(t, t.TempDir())
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	_, ok := <-w.Captures()
	assert.False(t, ok)
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), DefaultOptions())
	assert.Error(t, err)
}
