package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
)

var (
	ErrNoFrame           = errors.New("no frame to freeze yet")
	ErrInvalidTransition = errors.New("invalid capture transition")
	ErrExportInProgress  = errors.New("export in progress")
	ErrExportFailed      = errors.New("export failed")
)

// CaptureMachine tracks LIVE / FROZEN / SAVED / EXPORTED.
//
// Transitions are serialized with op, and every state read
// goes through mu, so the worker always sees a state together
// with its snapshot.
type CaptureMachine struct {
	op sync.Mutex
	mu sync.Mutex

	state     CaptureState
	snap      *FrozenSnapshot
	exporting bool

	latest atomic.Pointer[ProcessedFrame]

	mode      *ModeState
	exporter  Exporter
	push      func(Outbound)
	fps       func() float64
	autoLive  bool
	listeners []StateListener

	log *logger.Logger
}

type CaptureOptions struct {
	// AutoLive returns to LIVE after a successful save,
	// otherwise the machine stays frozen on the saved snapshot.
	AutoLive bool
}

func NewCaptureMachine(mode *ModeState, exporter Exporter, opts CaptureOptions, log *logger.Logger) *CaptureMachine {
	if mode == nil {
		mode = NewModeState(ModeEdges)
	}
	return &CaptureMachine{
		state:    StateLive,
		mode:     mode,
		exporter: exporter,
		autoLive: opts.AutoLive,
		push:     func(Outbound) {},
		fps:      func() float64 { return 0 },
		log:      log.Stage("capture"),
	}
}

// AddListener registers a state change listener.
// Should be called before the pipeline starts.
func (c *CaptureMachine) AddListener(l StateListener) {
	c.op.Lock()
	c.listeners = append(c.listeners, l)
	c.op.Unlock()
}

// Observe records the most recently published live frame.
func (c *CaptureMachine) Observe(f *ProcessedFrame) { c.latest.Store(f) }

// Latest returns the last observed live frame if any.
func (c *CaptureMachine) Latest() *ProcessedFrame { return c.latest.Load() }

func (c *CaptureMachine) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Frozen returns the snapshot if the machine is frozen.
func (c *CaptureMachine) Frozen() (FrozenSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateFrozen || c.snap == nil {
		return FrozenSnapshot{}, false
	}
	return *c.snap, true
}

// Snapshot reads the state and the held snapshot together.
func (c *CaptureMachine) Snapshot() (FrozenSnapshot, CaptureState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return FrozenSnapshot{}, c.state, false
	}
	return *c.snap, c.state, true
}

// Freeze copies the latest frame into a snapshot and switches to FROZEN.
func (c *CaptureMachine) Freeze() error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if c.state != StateLive {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: freeze from %v", ErrInvalidTransition, st)
	}
	f := c.latest.Load()
	if f == nil {
		c.mu.Unlock()
		return ErrNoFrame
	}
	snap := newSnapshot(f, f.Mode)
	c.snap, c.state = &snap, StateFrozen
	c.mu.Unlock()

	c.log.Info().Uint64("seq", snap.Frame.Seq).Str("mode", snap.Mode.String()).Msg("Frozen")
	c.notify(StateFrozen)
	return nil
}

// Retake drops the snapshot and resumes live processing.
func (c *CaptureMachine) Retake() error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if err := c.checkFrozen("retake"); err != nil {
		c.mu.Unlock()
		return err
	}
	c.snap, c.state = nil, StateLive
	c.mu.Unlock()

	c.log.Info().Msg("Retake")
	c.notify(StateLive)
	return nil
}

// ConfirmSave exports the snapshot with the exporter.
// The snapshot stays in place until the export returns,
// on failure the machine remains FROZEN.
func (c *CaptureMachine) ConfirmSave(ctx context.Context) error {
	c.op.Lock()
	c.mu.Lock()
	if err := c.checkFrozen("save"); err != nil {
		c.mu.Unlock()
		c.op.Unlock()
		return err
	}
	snap := *c.snap
	c.exporting = true
	c.mu.Unlock()
	c.op.Unlock()

	meta := ExportMeta{Mode: snap.Mode, CapturedAt: snap.Frame.Timestamp, FrozenAt: snap.At, Fps: c.fps()}
	var err error
	if c.exporter == nil {
		err = errors.New("no exporter")
	} else {
		start := time.Now()
		err = c.exporter.Export(ctx, snap, meta)
		c.log.Debug().Dur("took", time.Since(start)).Err(err).Msg("Export")
	}

	c.op.Lock()
	defer c.op.Unlock()
	c.mu.Lock()
	c.exporting = false
	if err != nil {
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("Save failed, still frozen")
		return fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	if c.autoLive {
		c.snap, c.state = nil, StateLive
	}
	c.mu.Unlock()

	c.log.Info().Bool("live", c.autoLive).Msg("Saved")
	c.notify(StateSaved)
	if c.autoLive {
		c.notify(StateLive)
	}
	return nil
}

// ConfirmExport sends the snapshot once to the broadcast tagged as exported
// and returns to LIVE.
func (c *CaptureMachine) ConfirmExport() error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if err := c.checkFrozen("export"); err != nil {
		c.mu.Unlock()
		return err
	}
	snap := *c.snap
	c.push(Outbound{Frame: &snap.Frame, Mode: snap.Mode, State: StateExported, Fps: c.fps()})
	c.snap, c.state = nil, StateLive
	c.mu.Unlock()

	c.log.Info().Uint64("seq", snap.Frame.Seq).Msg("Exported")
	c.notify(StateExported)
	c.notify(StateLive)
	return nil
}

// Reset forces LIVE without notifications, used on pipeline teardown.
func (c *CaptureMachine) Reset() {
	c.op.Lock()
	c.mu.Lock()
	c.snap, c.state = nil, StateLive
	c.mu.Unlock()
	c.op.Unlock()
	c.latest.Store(nil)
}

// checkFrozen must be called with mu held.
func (c *CaptureMachine) checkFrozen(action string) error {
	if c.state != StateFrozen || c.snap == nil {
		return fmt.Errorf("%w: %v from %v", ErrInvalidTransition, action, c.state)
	}
	if c.exporting {
		return ErrExportInProgress
	}
	return nil
}

// notify must be called with op held.
func (c *CaptureMachine) notify(s CaptureState) {
	m := c.mode.Load()
	for _, l := range c.listeners {
		l.OnStateChange(s, m)
	}
}

// ifLive runs fn while holding the state lock if the machine is LIVE,
// so a freeze can't slip in between the check and a publish.
func (c *CaptureMachine) ifLive(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLive {
		return false
	}
	fn()
	return true
}
