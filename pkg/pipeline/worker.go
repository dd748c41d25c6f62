package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
)

var (
	ErrStopTimeout   = errors.New("worker stop timeout")
	ErrTransformNone = errors.New("transform returned no frame")
)

type WorkerOptions struct {
	// MinInterval is the target time between two processed cycles.
	MinInterval time.Duration
	// BusyWait is the retry delay while a transform is in flight.
	BusyWait time.Duration
	// IdleWait is the retry delay when no frame is available.
	IdleWait time.Duration
	// FrozenWait is the delay after replaying the frozen snapshot.
	FrozenWait time.Duration
}

func (o *WorkerOptions) defaults() {
	if o.MinInterval <= 0 {
		o.MinInterval = 33 * time.Millisecond
	}
	if o.BusyWait <= 0 {
		o.BusyWait = 5 * time.Millisecond
	}
	if o.IdleWait <= 0 {
		o.IdleWait = 10 * time.Millisecond
	}
	if o.FrozenWait <= 0 {
		o.FrozenWait = 50 * time.Millisecond
	}
}

// Worker is the single processing loop, the only caller of the transform.
type Worker struct {
	slot      *FrameSlot
	mode      *ModeState
	capture   *CaptureMachine
	display   *DisplaySink
	cast      *BroadcastSink
	monitor   *RateMonitor
	transform Transform
	opts      WorkerOptions

	inFlight atomic.Bool
	running  atomic.Bool

	mu   sync.Mutex
	quit chan struct{}
	done chan struct{}
	last time.Time

	log *logger.Logger
}

type workerDeps struct {
	slot    *FrameSlot
	mode    *ModeState
	capture *CaptureMachine
	display *DisplaySink
	cast    *BroadcastSink
	monitor *RateMonitor
}

func newWorker(d workerDeps, t Transform, opts WorkerOptions, log *logger.Logger) *Worker {
	opts.defaults()
	return &Worker{
		slot:      d.slot,
		mode:      d.mode,
		capture:   d.capture,
		display:   d.display,
		cast:      d.cast,
		monitor:   d.monitor,
		transform: t,
		opts:      opts,
		log:       log.Stage("worker"),
	}
}

// Start runs the loop in its own goroutine, no-op if already running.
// After a timed out stop the new run waits for the previous loop to exit
// before taking frames, so there is never more than one transform call.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.quit != nil {
		return
	}
	prev := w.done
	w.quit, w.done = make(chan struct{}), make(chan struct{})
	w.running.Store(true)

	go w.loop(prev, w.quit, w.done)
	w.log.Debug().Dur("interval", w.opts.MinInterval).Msg("Started")
}

// Stop asks the loop to exit and waits up to timeout.
// A timeout is reported but the guard is released anyway.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	quit, done := w.quit, w.done
	w.quit = nil
	w.mu.Unlock()
	if quit == nil {
		return nil
	}

	close(quit)
	w.running.Store(false)
	defer w.inFlight.Store(false)

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		w.log.Debug().Msg("Stopped")
		return nil
	case <-t.C:
		w.log.Warn().Dur("timeout", timeout).Msg("Worker didn't stop in time")
		return ErrStopTimeout
	}
}

// Running is true between Start and Stop.
func (w *Worker) Running() bool { return w.running.Load() }

// loop exits only on its own quit, done is closed when
// both this loop and the previous one are gone.
func (w *Worker) loop(prev, quit, done chan struct{}) {
	defer close(done)
	if prev != nil {
		select {
		case <-prev:
		case <-quit:
			<-prev
			return
		}
	}
	w.last = time.Time{}
	for !closed(quit) {
		if d := w.step(quit); d > 0 {
			w.sleep(d, quit)
		}
	}
}

func closed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (w *Worker) sleep(d time.Duration, quit chan struct{}) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-quit:
	}
}

// cycle runs one iteration and returns how long to wait before the next one.
func (w *Worker) cycle() time.Duration { return w.step(nil) }

// step is a cycle of the run that quit belongs to,
// a result finished after that run was stopped is dropped.
func (w *Worker) step(quit chan struct{}) time.Duration {
	if w.inFlight.Load() {
		return w.opts.BusyWait
	}

	if !w.last.IsZero() {
		if el := time.Since(w.last); el < w.opts.MinInterval {
			return w.opts.MinInterval - el
		}
	}

	raw, ok := w.slot.TakeNewest()
	if !ok {
		return w.opts.IdleWait
	}

	if snap, frozen := w.capture.Frozen(); frozen {
		w.replay(snap)
		return w.opts.FrozenWait
	}

	if !w.inFlight.CompareAndSwap(false, true) {
		return w.opts.BusyWait
	}
	mode := w.mode.Load()
	start := time.Now()
	w.last = start
	out, err := w.apply(raw, mode)
	took := time.Since(start)
	w.inFlight.Store(false)
	w.monitor.Mark(StageTransform, took)

	if err != nil {
		w.monitor.Fail()
		w.log.Warn().Err(err).Uint64("seq", raw.Seq).Str("mode", mode.String()).Msg("Transform failed")
		return 0
	}

	if closed(quit) {
		w.log.Debug().Uint64("seq", raw.Seq).Msg("Stopped while processing, result dropped")
		return 0
	}
	out.Mode, out.Duration, out.Seq = mode, took, raw.Seq
	out.Timestamp = time.Now()

	published := w.capture.ifLive(func() {
		fps, _ := w.monitor.Tick()
		w.display.Publish(out)
		if w.cast.Live() {
			w.cast.Offer(Outbound{Frame: out, Mode: mode, State: StateLive, Fps: fps})
		}
		w.capture.Observe(out)
	})
	if !published {
		w.log.Debug().Uint64("seq", raw.Seq).Msg("Frozen while processing, result dropped")
	}
	w.monitor.Mark(StageCycle, time.Since(start))
	return 0
}

// replay republishes the frozen snapshot instead of processing.
func (w *Worker) replay(snap FrozenSnapshot) {
	w.monitor.FrozenCycle()
	f := snap.Frame
	w.display.Publish(&f)
	if w.cast.Live() {
		w.cast.Offer(Outbound{Frame: &f, Mode: snap.Mode, State: StateFrozen, Fps: w.monitor.Fps()})
	}
}

func (w *Worker) apply(raw RawFrame, mode Mode) (out *ProcessedFrame, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("transform panic: %v", r)
		}
	}()
	out, err = w.transform.Transform(raw, mode)
	if err == nil && (out == nil || len(out.Data) == 0) {
		err = ErrTransformNone
	}
	return
}
