// Package display is a headless local renderer of the pipeline display sink.
package display

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/edgeviewer/edgeviewer/pkg/payload"
	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
)

type Marker interface {
	Mark(stage string, d time.Duration)
}

type Options struct {
	Refresh time.Duration
	Quality int
}

// Renderer turns the latest display frame into a JPEG image.
type Renderer struct {
	sink   *pipeline.DisplaySink
	marker Marker
	opts   Options

	mu   sync.RWMutex
	last []byte
	at   time.Time

	rendered atomic.Uint64
	log      *logger.Logger
}

func New(sink *pipeline.DisplaySink, marker Marker, opts Options, log *logger.Logger) *Renderer {
	if opts.Refresh <= 0 {
		opts.Refresh = 100 * time.Millisecond
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 85
	}
	return &Renderer{sink: sink, marker: marker, opts: opts, log: log.Stage("display")}
}

// Run renders on every display signal and on the refresh tick until ctx is done.
func (r *Renderer) Run(ctx context.Context) {
	t := time.NewTicker(r.opts.Refresh)
	defer t.Stop()
	r.log.Debug().Dur("refresh", r.opts.Refresh).Msg("Renderer started")
	for {
		select {
		case <-ctx.Done():
			r.log.Debug().Msg("Renderer stopped")
			return
		case <-r.sink.Dirty():
		case <-t.C:
		}
		r.Render()
	}
}

// Render draws the frame if it changed since the last time.
func (r *Renderer) Render() bool {
	f, ok := r.sink.ConsumeIfDirty()
	if !ok || f == nil {
		return false
	}
	start := time.Now()
	img, err := payload.ToImage(f)
	if err != nil {
		r.log.Warn().Err(err).Msg("Bad display frame")
		return false
	}
	data, err := payload.EncodeJPEG(img, r.opts.Quality)
	if err != nil {
		r.log.Warn().Err(err).Msg("Display encode")
		return false
	}
	r.mu.Lock()
	r.last, r.at = data, f.Timestamp
	r.mu.Unlock()
	r.rendered.Add(1)
	if r.marker != nil {
		r.marker.Mark(pipeline.StageRender, time.Since(start))
	}
	return true
}

// JPEG returns the last rendered image with its capture time.
func (r *Renderer) JPEG() ([]byte, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.at, r.last != nil
}

func (r *Renderer) Rendered() uint64 { return r.rendered.Load() }
