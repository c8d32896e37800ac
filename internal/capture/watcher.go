// Package capture receives completed acquisitions from the instrument layer.
//
// Acquisition software writes frames into a directory; a frame is delivered
// only after its file has been quiet for the configured period, so a
// partially written TIFF is never decoded.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"piescope/internal/image"
)

// Capture is one delivered acquisition.
type Capture struct {
	Path  string
	Layer *image.Layer
	Err   error // decode failure; Layer is nil
	Time  time.Time
}

// Options configure a Watcher.
type Options struct {
	QuietPeriod time.Duration
	Adjust      image.Adjustments
	BufferSize  int
	Logger      *slog.Logger
}

// DefaultOptions returns the watcher defaults.
func DefaultOptions() Options {
	return Options{
		QuietPeriod: 500 * time.Millisecond,
		BufferSize:  16,
	}
}

type pending struct {
	timer *time.Timer
	gen   int
}

type settled struct {
	path string
	gen  int
}

// Watcher delivers new image files appearing in a directory.
type Watcher struct {
	dir     string
	opts    Options
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	out      chan Capture
	ready    chan settled
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher starts watching dir. Events are queued until Run is called.
func NewWatcher(dir string, opts Options) (*Watcher, error) {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultOptions().QuietPeriod
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	return &Watcher{
		dir:     dir,
		opts:    opts,
		watcher: fw,
		logger:  logger.With("capture_dir", dir),
		out:     make(chan Capture, opts.BufferSize),
		ready:   make(chan settled),
		done:    make(chan struct{}),
	}, nil
}

// Captures returns the delivery channel. It is closed when Run returns.
func (w *Watcher) Captures() <-chan Capture {
	return w.out
}

// Close stops the watcher; Run returns shortly after.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// Run processes file events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.out)
	defer w.Close()

	files := make(map[string]*pending)
	defer func() {
		for _, p := range files {
			p.timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !image.IsSupportedFormat(event.Name) {
				continue
			}
			w.touch(files, event.Name)

		case s := <-w.ready:
			p, ok := files[s.path]
			if !ok || p.gen != s.gen {
				continue
			}
			delete(files, s.path)
			if !w.deliver(ctx, s.path) {
				return nil
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// touch restarts the quiet period for path.
func (w *Watcher) touch(files map[string]*pending, path string) {
	p, ok := files[path]
	if !ok {
		p = &pending{}
		files[path] = p
	} else {
		p.timer.Stop()
	}
	p.gen++
	s := settled{path: path, gen: p.gen}
	p.timer = time.AfterFunc(w.opts.QuietPeriod, func() {
		select {
		case w.ready <- s:
		case <-w.done:
		}
	})
}

func (w *Watcher) deliver(ctx context.Context, path string) bool {
	c := Capture{Path: path, Time: time.Now()}
	c.Layer, c.Err = image.Load(path, w.opts.Adjust)
	if c.Err != nil {
		w.logger.Warn("capture could not be decoded", "path", path, "error", c.Err)
	} else {
		w.logger.Info("capture received", "path", path,
			"width", c.Layer.Width(), "height", c.Layer.Height(), "modality", c.Layer.Modality)
	}

	select {
	case w.out <- c:
		return true
	case <-ctx.Done():
		return false
	case <-w.done:
		return false
	}
}
