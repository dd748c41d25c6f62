package pipeline

import (
	"sync"
	"sync/atomic"
)

const (
	minSlotCapacity     = 2
	maxSlotCapacity     = 3
	defaultSlotCapacity = 3
)

// FrameSlot is a bounded drop-oldest queue of raw frames between the camera
// callback and the processing worker.
// Neither side blocks: the lock is held only for slice bookkeeping.
type FrameSlot struct {
	mu      sync.Mutex
	frames  []RawFrame
	head    int
	size    int
	dropped atomic.Uint64
}

// NewFrameSlot makes a slot with the capacity clamped to [2, 3],
// zero means the default one.
func NewFrameSlot(capacity int) *FrameSlot {
	if capacity == 0 {
		capacity = defaultSlotCapacity
	}
	capacity = max(minSlotCapacity, min(capacity, maxSlotCapacity))
	return &FrameSlot{frames: make([]RawFrame, capacity)}
}

// Put inserts the frame, evicting the oldest one when the slot is full.
// Returns false if something was evicted.
func (s *FrameSlot) Put(f RawFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := len(s.frames)
	evicted := false
	if s.size == c {
		s.frames[s.head] = RawFrame{}
		s.head = (s.head + 1) % c
		s.size--
		evicted = true
		s.dropped.Add(1)
	}
	s.frames[(s.head+s.size)%c] = f
	s.size++
	return !evicted
}

// TakeNewest drains the slot and returns only the most recent frame.
func (s *FrameSlot) TakeNewest() (RawFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == 0 {
		return RawFrame{}, false
	}
	c := len(s.frames)
	newest := s.frames[(s.head+s.size-1)%c]
	if s.size > 1 {
		s.dropped.Add(uint64(s.size - 1))
	}
	s.reset()
	return newest, true
}

// Clear empties the slot, the frames are discarded without counting.
func (s *FrameSlot) Clear() { s.mu.Lock(); s.reset(); s.mu.Unlock() }

func (s *FrameSlot) Len() int        { s.mu.Lock(); defer s.mu.Unlock(); return s.size }
func (s *FrameSlot) Cap() int        { return len(s.frames) }
func (s *FrameSlot) Dropped() uint64 { return s.dropped.Load() }

func (s *FrameSlot) reset() {
	for i := range s.frames {
		s.frames[i] = RawFrame{}
	}
	s.head, s.size = 0, 0
}
