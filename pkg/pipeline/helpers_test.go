package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/com"
	"github.com/edgeviewer/edgeviewer/pkg/logger"
)

var errBadFrame = errors.New("bad frame")

const timeout = 2 * time.Second

// countingTransform copies the luma plane and counts concurrent calls.
type countingTransform struct {
	delay   time.Duration
	failSeq map[uint64]bool
	hold    chan struct{}
	entered chan struct{}

	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32

	mu    sync.Mutex
	modes []Mode
}

func (t *countingTransform) Transform(f RawFrame, m Mode) (*ProcessedFrame, error) {
	n := t.active.Add(1)
	defer t.active.Add(-1)
	for {
		mx := t.maxSeen.Load()
		if n <= mx || t.maxSeen.CompareAndSwap(mx, n) {
			break
		}
	}
	t.calls.Add(1)
	t.mu.Lock()
	t.modes = append(t.modes, m)
	t.mu.Unlock()

	if t.entered != nil {
		t.entered <- struct{}{}
	}
	if t.hold != nil {
		<-t.hold
	}
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	if t.failSeq[f.Seq] {
		return nil, errBadFrame
	}
	return &ProcessedFrame{Data: append([]byte(nil), f.Data[:f.W*f.H]...), W: f.W, H: f.H, Channels: 1}, nil
}

func (t *countingTransform) seenModes() []Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Mode(nil), t.modes...)
}

type textEncoder struct{}

func (textEncoder) Encode(o Outbound) ([]byte, error) {
	return []byte(fmt.Sprintf("%d:%v:%v", o.Frame.Seq, o.Mode, o.State)), nil
}

type fakeSubscriber struct {
	id    com.Uid
	block chan struct{}
	err   error

	mu   sync.Mutex
	msgs []string
	got  chan string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{id: com.NewUid(), got: make(chan string, 100)}
}

func (s *fakeSubscriber) Id() com.Uid { return s.id }

func (s *fakeSubscriber) Send(data []byte) error {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, string(data))
	s.mu.Unlock()
	select {
	case s.got <- string(data):
	default:
	}
	return nil
}

func (s *fakeSubscriber) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

type fakeExporter struct {
	err   error
	hold  chan struct{}
	calls atomic.Int32
	last  FrozenSnapshot
}

func (e *fakeExporter) Export(_ context.Context, snap FrozenSnapshot, _ ExportMeta) error {
	e.calls.Add(1)
	if e.hold != nil {
		<-e.hold
	}
	e.last = snap
	return e.err
}

type stateRecorder struct {
	mu     sync.Mutex
	states []CaptureState
	modes  []Mode
}

func (r *stateRecorder) OnStateChange(s CaptureState, m Mode) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.modes = append(r.modes, m)
	r.mu.Unlock()
}

func (r *stateRecorder) list() []CaptureState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CaptureState(nil), r.states...)
}

func rawFrame(seq uint64) RawFrame {
	w, h := 4, 2
	data := make([]byte, NV21Size(w, h))
	data[0] = byte(seq)
	return RawFrame{Data: data, W: w, H: h, Seq: seq, Timestamp: time.Now()}
}

func processed(seq uint64) *ProcessedFrame {
	return &ProcessedFrame{Data: []byte{byte(seq)}, W: 1, H: 1, Channels: 1, Seq: seq, Timestamp: time.Now()}
}

// testPipeline builds a pipeline with a tiny interval for manual cycles.
func testPipeline(t Transform, exp Exporter, live bool) *Pipeline {
	return New(Options{
		LiveBroadcast: live,
		AutoLive:      true,
		InitialMode:   ModeEdges,
		StopTimeout:   time.Second,
		Worker: WorkerOptions{
			MinInterval: time.Nanosecond,
			BusyWait:    time.Millisecond,
			IdleWait:    time.Millisecond,
			FrozenWait:  time.Millisecond,
		},
	}, t, textEncoder{}, exp, logger.Nop())
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
