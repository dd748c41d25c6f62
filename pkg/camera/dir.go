package camera

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
	"github.com/fsnotify/fsnotify"
)

var supported = map[string]struct{}{".png": {}, ".jpg": {}, ".jpeg": {}}

// Dir is a camera that pushes every image file appearing in a directory.
// Files already in the directory are pushed on start when Replay is set.
type Dir struct {
	Path   string
	Replay bool

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	log     *logger.Logger
}

func NewDir(path string, replay bool, log *logger.Logger) *Dir {
	return &Dir{Path: path, Replay: replay, log: log.Stage("dir")}
}

func (d *Dir) Start(ctx context.Context, sink func(pipeline.RawFrame)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watcher != nil {
		return ErrRunning
	}
	dir, err := filepath.Abs(d.Path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	d.watcher, d.done = watcher, make(chan struct{})

	var files []string
	if d.Replay {
		files = d.existing(dir)
	}
	go d.watch(ctx, watcher, files, sink, d.done)
	d.log.Info().Str("dir", dir).Int("replay", len(files)).Msg("Watching")
	return nil
}

func (d *Dir) existing(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		d.log.Warn().Err(err).Msg("Dir read")
		return nil
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isImage(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files
}

func (d *Dir) watch(ctx context.Context, w *fsnotify.Watcher, files []string, sink func(pipeline.RawFrame), done chan struct{}) {
	defer func() {
		d.mu.Lock()
		if d.watcher == w {
			d.watcher = nil
		}
		d.mu.Unlock()
		close(done)
	}()
	for _, f := range files {
		d.push(f, sink)
	}
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && isImage(event.Name) {
				d.push(event.Name, sink)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			d.log.Warn().Err(err).Msg("Watch error")
		}
	}
}

func (d *Dir) push(path string, sink func(pipeline.RawFrame)) {
	f, err := os.Open(path)
	if err != nil {
		d.log.Debug().Err(err).Msg("Open")
		return
	}
	img, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		// files might be caught in the middle of a write
		d.log.Debug().Err(err).Str("file", path).Msg("Decode")
		return
	}
	frame := FromImage(img)
	frame.Timestamp = time.Now()
	sink(frame)
}

// Stop closes the watcher and waits for the watch loop.
func (d *Dir) Stop() {
	d.mu.Lock()
	w, done := d.watcher, d.done
	d.watcher = nil
	d.mu.Unlock()
	if w == nil {
		return
	}
	_ = w.Close()
	<-done
}

func isImage(name string) bool {
	_, ok := supported[strings.ToLower(filepath.Ext(name))]
	return ok
}
