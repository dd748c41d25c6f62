package camera

import (
	"context"
	"sync"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
)

// Pattern is a synthetic camera: a gradient with a moving bright square.
// With Burst > 1 it emits several frames back to back on each tick,
// which is how a real camera looks after a scheduling hiccup.
type Pattern struct {
	W, H     int
	Fps      float64
	Burst    int
	Rotation int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	log    *logger.Logger
}

func NewPattern(w, h int, fps float64, burst int, log *logger.Logger) *Pattern {
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	if fps <= 0 {
		fps = 30
	}
	if burst < 1 {
		burst = 1
	}
	return &Pattern{W: w, H: h, Fps: fps, Burst: burst, log: log.Stage("pattern")}
}

func (p *Pattern) Start(ctx context.Context, sink func(pipeline.RawFrame)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrRunning
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, sink, p.done)
	p.log.Info().Msgf("Pattern %vx%v@%v", p.W, p.H, p.Fps)
	return nil
}

func (p *Pattern) run(ctx context.Context, sink func(pipeline.RawFrame), done chan struct{}) {
	defer func() {
		p.mu.Lock()
		if p.done == done {
			p.cancel = nil
		}
		p.mu.Unlock()
		close(done)
	}()
	t := time.NewTicker(time.Duration(float64(time.Second) / p.Fps))
	defer t.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for i := 0; i < p.Burst; i++ {
				f := p.Frame(n)
				f.Timestamp = time.Now()
				sink(f)
				n++
			}
		}
	}
}

// Frame renders the n-th pattern frame.
func (p *Pattern) Frame(n int) pipeline.RawFrame {
	w, h := p.W, p.H
	data := make([]byte, pipeline.NV21Size(w, h))
	size := max(1, min(w, h)/6)
	sx := (n * 4) % max(1, w-size)
	sy := (h - size) / 2
	for y := 0; y < h; y++ {
		row := data[y*w : (y+1)*w]
		for x := range row {
			if x >= sx && x < sx+size && y >= sy && y < sy+size {
				row[x] = 235
			} else {
				row[x] = byte(16 + (x*200)/max(1, w))
			}
		}
	}
	for i := w * h; i < len(data); i++ {
		data[i] = 128
	}
	return pipeline.RawFrame{Data: data, W: w, H: h, Rotation: p.Rotation}
}

// Stop halts the generator and waits for it, it's safe to call many times.
func (p *Pattern) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
