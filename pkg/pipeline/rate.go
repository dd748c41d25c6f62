package pipeline

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StageTransform = "transform"
	StagePublish   = "publish"
	StageCycle     = "cycle"
	StageRender    = "render"
	StageEncode    = "encode"
)

const fpsWindow = time.Second

// RateMonitor tracks the processed frame rate and per-stage latency.
type RateMonitor struct {
	mu      sync.Mutex
	count   int
	since   time.Time
	fps     float64
	stages  map[string]*StageStats
	now     func() time.Time
	latency *prometheus.HistogramVec

	processed atomic.Uint64
	failures  atomic.Uint64
	frozen    atomic.Uint64
}

// StageStats keeps the latency of a single pipeline stage.
type StageStats struct {
	Name  string
	Last  time.Duration
	Max   time.Duration
	Total time.Duration
	Count uint64
}

func (s StageStats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

func NewRateMonitor() *RateMonitor {
	return &RateMonitor{
		stages: make(map[string]*StageStats),
		now:    time.Now,
		since:  time.Now(),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edgeviewer",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   []float64{.001, .0025, .005, .01, .02, .033, .05, .1, .25, .5},
		}, []string{"stage"}),
	}
}

// Tick counts one processed frame, the rate is recomputed once per second.
func (r *RateMonitor) Tick() (fps float64, updated bool) {
	r.processed.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	now := r.now()
	if el := now.Sub(r.since); el >= fpsWindow {
		r.fps = float64(r.count) / el.Seconds()
		r.count, r.since = 0, now
		return r.fps, true
	}
	return r.fps, false
}

func (r *RateMonitor) Fps() float64 { r.mu.Lock(); defer r.mu.Unlock(); return r.fps }

// Mark records a stage duration.
func (r *RateMonitor) Mark(stage string, d time.Duration) {
	r.latency.WithLabelValues(stage).Observe(d.Seconds())
	r.mu.Lock()
	s, ok := r.stages[stage]
	if !ok {
		s = &StageStats{Name: stage}
		r.stages[stage] = s
	}
	s.Last, s.Total, s.Count = d, s.Total+d, s.Count+1
	if d > s.Max {
		s.Max = d
	}
	r.mu.Unlock()
}

// Stages returns a copy of all the stage stats sorted by name.
func (r *RateMonitor) Stages() []StageStats {
	r.mu.Lock()
	out := make([]StageStats, 0, len(r.stages))
	for _, s := range r.stages {
		out = append(out, *s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *RateMonitor) Fail()                { r.failures.Add(1) }
func (r *RateMonitor) FrozenCycle()         { r.frozen.Add(1) }
func (r *RateMonitor) Processed() uint64    { return r.processed.Load() }
func (r *RateMonitor) Failures() uint64     { return r.failures.Load() }
func (r *RateMonitor) FrozenCycles() uint64 { return r.frozen.Load() }

func (r *RateMonitor) Reset() {
	r.mu.Lock()
	r.count, r.fps, r.since = 0, 0, r.now()
	r.mu.Unlock()
}

// Register exposes the monitor and the pipeline counters to Prometheus.
func (r *RateMonitor) Register(reg prometheus.Registerer, slot *FrameSlot, cast *BroadcastSink) error {
	counter := func(name, help string, fn func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Namespace: "edgeviewer", Name: name, Help: help},
			func() float64 { return float64(fn()) })
	}
	cs := []prometheus.Collector{
		r.latency,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{Namespace: "edgeviewer", Name: "fps", Help: "Processed frames per second."}, r.Fps),
		counter("frames_processed_total", "Frames published by the worker.", r.Processed),
		counter("transform_failures_total", "Cycles skipped due to transform failure.", r.Failures),
		counter("frozen_cycles_total", "Cycles replaying the frozen snapshot.", r.FrozenCycles),
	}
	if slot != nil {
		cs = append(cs, counter("slot_dropped_total", "Raw frames dropped by the frame slot.", slot.Dropped))
	}
	if cast != nil {
		cs = append(cs,
			counter("broadcast_dropped_total", "Frames dropped by the broadcast queue.", func() uint64 { return cast.Stats().Dropped }),
			counter("broadcast_skipped_total", "Frames skipped for busy subscribers.", func() uint64 { return cast.Stats().Skipped }),
			counter("broadcast_failed_total", "Failed subscriber sends.", func() uint64 { return cast.Stats().Failed }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{Namespace: "edgeviewer", Name: "subscribers", Help: "Connected viewers."},
				func() float64 { return float64(cast.Subscribers()) }),
		)
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
