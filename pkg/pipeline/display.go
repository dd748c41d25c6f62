package pipeline

import "sync"

// DisplaySink is a single-slot handoff of the latest frame to a renderer.
// Publish never copies pixels under the lock, it is a pointer swap.
type DisplaySink struct {
	mu     sync.Mutex
	frame  *ProcessedFrame
	dirty  bool
	signal chan struct{}
}

func NewDisplaySink() *DisplaySink { return &DisplaySink{signal: make(chan struct{}, 1)} }

// Publish replaces the current frame and wakes up the renderer.
func (d *DisplaySink) Publish(f *ProcessedFrame) {
	if f == nil {
		return
	}
	d.mu.Lock()
	d.frame, d.dirty = f, true
	d.mu.Unlock()
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// ConsumeIfDirty returns the frame only if it has changed since the last call.
func (d *DisplaySink) ConsumeIfDirty() (*ProcessedFrame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty {
		return nil, false
	}
	d.dirty = false
	return d.frame, true
}

// Latest peeks at the current frame without touching the dirty flag.
func (d *DisplaySink) Latest() *ProcessedFrame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame
}

// Dirty is signaled after a publish, at most one pending signal is kept.
func (d *DisplaySink) Dirty() <-chan struct{} { return d.signal }

func (d *DisplaySink) Clear() {
	d.mu.Lock()
	d.frame, d.dirty = nil, false
	d.mu.Unlock()
}
