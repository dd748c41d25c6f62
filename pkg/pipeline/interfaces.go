package pipeline

import (
	"context"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/com"
)

// Transform turns a raw camera frame into a processed one.
// It is called from the processing worker only, one call at a time.
// A nil frame or an error means the frame is skipped.
type Transform interface {
	Transform(f RawFrame, m Mode) (*ProcessedFrame, error)
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc func(f RawFrame, m Mode) (*ProcessedFrame, error)

func (fn TransformFunc) Transform(f RawFrame, m Mode) (*ProcessedFrame, error) { return fn(f, m) }

// ExportMeta describes an exported snapshot.
type ExportMeta struct {
	Mode       Mode
	CapturedAt time.Time
	FrozenAt   time.Time
	Fps        float64
}

// Exporter stores a frozen snapshot somewhere (disk, remote storage).
type Exporter interface {
	Export(ctx context.Context, snap FrozenSnapshot, meta ExportMeta) error
}

// Encoder serializes an outbound frame into a network payload.
// Called once per broadcast frame, the result is shared by all subscribers.
type Encoder interface {
	Encode(o Outbound) ([]byte, error)
}

// Subscriber is a remote viewer of the broadcast.
// Send may block, the broadcast sink isolates each call.
type Subscriber interface {
	Id() com.Uid
	Send(data []byte) error
}

// StateListener receives capture state changes together with the active mode.
type StateListener interface {
	OnStateChange(state CaptureState, mode Mode)
}

type StateListenerFunc func(state CaptureState, mode Mode)

func (fn StateListenerFunc) OnStateChange(state CaptureState, mode Mode) { fn(state, mode) }
