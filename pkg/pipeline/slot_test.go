package pipeline

import (
	"math/rand"
	"sync"
	"testing"
)

func TestSlotTakeNewest(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		puts     int
		dropped  uint64
	}{
		{name: "one", capacity: 3, puts: 1},
		{name: "cap 2 gets 1,2,3", capacity: 2, puts: 3, dropped: 2},
		{name: "exact", capacity: 3, puts: 3, dropped: 2},
		{name: "overflow", capacity: 3, puts: 10, dropped: 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFrameSlot(tt.capacity)
			for i := 1; i <= tt.puts; i++ {
				s.Put(rawFrame(uint64(i)))
				if s.Len() > s.Cap() {
					t.Fatalf("slot holds %v > %v", s.Len(), s.Cap())
				}
			}
			f, ok := s.TakeNewest()
			if !ok || f.Seq != uint64(tt.puts) {
				t.Errorf("got %v (%v), want %v", f.Seq, ok, tt.puts)
			}
			if s.Len() != 0 {
				t.Errorf("slot is not empty: %v", s.Len())
			}
			if _, ok := s.TakeNewest(); ok {
				t.Errorf("second take should be empty")
			}
			if s.Dropped() != tt.dropped {
				t.Errorf("dropped %v, want %v", s.Dropped(), tt.dropped)
			}
		})
	}
}

func TestSlotPutReportsEviction(t *testing.T) {
	s := NewFrameSlot(2)
	if !s.Put(rawFrame(1)) || !s.Put(rawFrame(2)) {
		t.Fatalf("no eviction expected")
	}
	if s.Put(rawFrame(3)) {
		t.Errorf("eviction expected")
	}
}

func TestSlotCapacityClamp(t *testing.T) {
	for in, want := range map[int]int{0: 3, 1: 2, 2: 2, 3: 3, 10: 3, -5: 2} {
		if got := NewFrameSlot(in).Cap(); got != want {
			t.Errorf("capacity %v -> %v, want %v", in, got, want)
		}
	}
}

func TestSlotRandomSequences(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		s := NewFrameSlot(2 + r.Intn(2))
		n := 1 + r.Intn(20)
		for j := 1; j <= n; j++ {
			s.Put(rawFrame(uint64(j)))
		}
		if f, _ := s.TakeNewest(); f.Seq != uint64(n) {
			t.Fatalf("run %v: got %v, want %v", i, f.Seq, n)
		}
	}
}

func TestSlotClear(t *testing.T) {
	s := NewFrameSlot(3)
	s.Put(rawFrame(1))
	s.Put(rawFrame(2))
	s.Clear()
	if _, ok := s.TakeNewest(); ok || s.Len() != 0 {
		t.Errorf("slot is not empty after clear")
	}
}

func TestSlotConcurrent(t *testing.T) {
	s := NewFrameSlot(3)
	const n = 10000
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			s.Put(rawFrame(uint64(i)))
		}
	}()
	var last uint64
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if f, ok := s.TakeNewest(); ok {
				if f.Seq <= last {
					t.Errorf("out of order: %v after %v", f.Seq, last)
					return
				}
				last = f.Seq
			}
			if i%1000 == 0 {
				s.Clear()
			}
		}
	}()
	wg.Wait()
	if s.Len() > s.Cap() {
		t.Errorf("slot overflow %v", s.Len())
	}
}
