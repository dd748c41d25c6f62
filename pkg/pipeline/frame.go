package pipeline

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Mode selects the transform variant.
type Mode int32

const (
	ModeRaw Mode = iota
	ModeEdges
	ModeGrayscale
)

func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeEdges:
		return "edges"
	case ModeGrayscale:
		return "grayscale"
	}
	return fmt.Sprintf("mode(%d)", int32(m))
}

func (m Mode) Valid() bool { return m >= ModeRaw && m <= ModeGrayscale }

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return ModeRaw, nil
	case "edges", "edge", "canny":
		return ModeEdges, nil
	case "grayscale", "gray", "grey":
		return ModeGrayscale, nil
	}
	return ModeRaw, fmt.Errorf("unknown mode %q", s)
}

// ModeState is the shared mode cell.
// Written by UI actions, read once per cycle by the worker.
type ModeState struct{ v atomic.Int32 }

func NewModeState(m Mode) *ModeState { s := &ModeState{}; s.v.Store(int32(m)); return s }

func (s *ModeState) Load() Mode       { return Mode(s.v.Load()) }
func (s *ModeState) Store(m Mode)     { s.v.Store(int32(m)) }
func (s *ModeState) Swap(m Mode) Mode { return Mode(s.v.Swap(int32(m))) }

// CaptureState is the state of the capture machine.
type CaptureState int32

const (
	StateLive CaptureState = iota
	StateFrozen
	StateSaved
	StateExported
)

func (s CaptureState) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateFrozen:
		return "frozen"
	case StateSaved:
		return "saved"
	case StateExported:
		return "exported"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// RawFrame is a captured NV21 frame: the full Y plane followed by
// interleaved VU samples at quarter resolution.
type RawFrame struct {
	Data      []byte
	W, H      int
	Rotation  int
	Timestamp time.Time
	Seq       uint64
}

// NV21Size returns the buffer length of a w x h NV21 frame.
func NV21Size(w, h int) int { return w*h + 2*((w+1)/2)*((h+1)/2) }

// ProcessedFrame is a transform result, 1 (luma) or 3 (RGB) channels.
// Read-only once published.
type ProcessedFrame struct {
	Data      []byte
	W, H      int
	Channels  int
	Mode      Mode
	Duration  time.Duration
	Timestamp time.Time
	Seq       uint64
}

// Clone makes an owned deep copy of the frame.
func (f *ProcessedFrame) Clone() ProcessedFrame {
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return c
}

func (f *ProcessedFrame) IsLandscape() bool { return f.W >= f.H }

// FrozenSnapshot is the frame held while the machine is frozen.
type FrozenSnapshot struct {
	Frame    ProcessedFrame
	Mode     Mode
	W, H     int
	Channels int
	At       time.Time
}

func newSnapshot(f *ProcessedFrame, m Mode) FrozenSnapshot {
	return FrozenSnapshot{Frame: f.Clone(), Mode: m, W: f.W, H: f.H, Channels: f.Channels, At: time.Now()}
}

// Outbound is one broadcast unit with the metadata it is tagged with.
type Outbound struct {
	Frame *ProcessedFrame
	Mode  Mode
	State CaptureState
	Fps   float64
}
