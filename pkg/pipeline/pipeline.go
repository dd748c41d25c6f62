// Package pipeline implements the real-time frame pipeline:
// camera frames go through a bounded slot into a single throttled worker,
// and the results fan out to a local display and a remote broadcast.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	SlotCapacity   int
	BroadcastQueue int
	// LiveBroadcast offers every processed frame to the broadcast,
	// otherwise viewers get only explicitly exported snapshots.
	LiveBroadcast bool
	// AutoLive returns to live mode after a save.
	AutoLive    bool
	InitialMode Mode
	StopTimeout time.Duration
	Worker      WorkerOptions
}

// Pipeline wires the frame slot, worker, capture machine and sinks together.
type Pipeline struct {
	slot    *FrameSlot
	mode    *ModeState
	capture *CaptureMachine
	display *DisplaySink
	cast    *BroadcastSink
	monitor *RateMonitor
	worker  *Worker

	stopTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	castWg sync.WaitGroup
	seq    uint64

	log *logger.Logger
}

func New(opts Options, t Transform, enc Encoder, exp Exporter, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Default()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = time.Second
	}
	if !opts.InitialMode.Valid() {
		opts.InitialMode = ModeEdges
	}

	p := &Pipeline{
		slot:        NewFrameSlot(opts.SlotCapacity),
		mode:        NewModeState(opts.InitialMode),
		display:     NewDisplaySink(),
		monitor:     NewRateMonitor(),
		stopTimeout: opts.StopTimeout,
		log:         log,
	}
	p.cast = NewBroadcastSink(opts.BroadcastQueue, enc, opts.LiveBroadcast, log)
	p.capture = NewCaptureMachine(p.mode, exp, CaptureOptions{AutoLive: opts.AutoLive}, log)
	p.capture.push = p.cast.Push
	p.capture.fps = p.monitor.Fps
	p.worker = newWorker(workerDeps{
		slot:    p.slot,
		mode:    p.mode,
		capture: p.capture,
		display: p.display,
		cast:    p.cast,
		monitor: p.monitor,
	}, t, opts.Worker, log)
	return p
}

// Push is the camera callback, it never blocks.
// Frames without a timestamp or sequence number get one.
func (p *Pipeline) Push(f RawFrame) bool {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	if f.Seq == 0 {
		p.mu.Lock()
		p.seq++
		f.Seq = p.seq
		p.mu.Unlock()
	}
	return p.slot.Put(f)
}

// Start launches the worker and the broadcast fan-out.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.castWg.Add(1)
	go func() {
		defer p.castWg.Done()
		p.cast.Run(ctx)
	}()
	p.worker.Start()
	p.log.Info().
		Str("mode", p.mode.Load().String()).
		Bool("live", p.cast.Live()).
		Int("slot", p.slot.Cap()).
		Msg("Pipeline started")
}

// Stop halts the worker within the stop timeout, clears the frame slot
// and stops the fan-out. The timeout error is informational.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	err := p.worker.Stop(p.stopTimeout)
	p.slot.Clear()
	cancel()
	p.castWg.Wait()
	if err != nil {
		p.log.Warn().Err(err).Msg("Pipeline stopped with timeout")
	} else {
		p.log.Info().Msg("Pipeline stopped")
	}
	return err
}

// SetMode switches the transform mode from the next cycle and returns the previous one.
// An unknown mode is ignored.
func (p *Pipeline) SetMode(m Mode) Mode {
	if !m.Valid() {
		p.log.Warn().Int("mode", int(m)).Msg("Unknown mode ignored")
		return p.mode.Load()
	}
	old := p.mode.Swap(m)
	if old != m {
		p.log.Info().Str("from", old.String()).Str("to", m.String()).Msg("Mode")
	}
	return old
}

func (p *Pipeline) Mode() Mode                            { return p.mode.Load() }
func (p *Pipeline) State() CaptureState                   { return p.capture.State() }
func (p *Pipeline) Freeze() error                         { return p.capture.Freeze() }
func (p *Pipeline) Retake() error                         { return p.capture.Retake() }
func (p *Pipeline) ConfirmExport() error                  { return p.capture.ConfirmExport() }
func (p *Pipeline) ConfirmSave(ctx context.Context) error { return p.capture.ConfirmSave(ctx) }

func (p *Pipeline) AddStateListener(l StateListener) { p.capture.AddListener(l) }

func (p *Pipeline) Slot() *FrameSlot          { return p.slot }
func (p *Pipeline) Display() *DisplaySink     { return p.display }
func (p *Pipeline) Broadcast() *BroadcastSink { return p.cast }
func (p *Pipeline) Monitor() *RateMonitor     { return p.monitor }
func (p *Pipeline) Capture() *CaptureMachine  { return p.capture }

// Register exposes the pipeline metrics.
func (p *Pipeline) Register(reg prometheus.Registerer) error {
	return p.monitor.Register(reg, p.slot, p.cast)
}

type Status struct {
	Mode  string
	State string
	// Snapshot is the sequence number of the held snapshot, 0 when none.
	Snapshot  uint64
	Fps       float64
	Processed uint64
	Failures  uint64
	Dropped   uint64
	Broadcast BroadcastStats
	Stages    []StageStats
}

func (p *Pipeline) Status() Status {
	snap, state, held := p.capture.Snapshot()
	var seq uint64
	if held {
		seq = snap.Frame.Seq
	}
	return Status{
		Mode:      p.Mode().String(),
		State:     state.String(),
		Snapshot:  seq,
		Fps:       p.monitor.Fps(),
		Processed: p.monitor.Processed(),
		Failures:  p.monitor.Failures(),
		Dropped:   p.slot.Dropped(),
		Broadcast: p.cast.Stats(),
		Stages:    p.monitor.Stages(),
	}
}
