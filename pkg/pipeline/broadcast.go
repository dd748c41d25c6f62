package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/edgeviewer/edgeviewer/pkg/com"
	"github.com/edgeviewer/edgeviewer/pkg/logger"
)

const (
	defaultBroadcastQueue = 3
	controlQueue          = 16
)

// BroadcastSink is a bounded outbound queue drained by a fan-out loop.
// Each subscriber gets its own send goroutine, so a stalled viewer
// costs at most its own frames.
type BroadcastSink struct {
	queue chan Outbound
	ctrl  chan []byte
	enc   Encoder
	subs  *com.Map[com.Uid, *subscription]
	live  atomic.Bool

	dropped atomic.Uint64
	skipped atomic.Uint64
	sent    atomic.Uint64
	failed  atomic.Uint64

	wg  sync.WaitGroup
	log *logger.Logger
}

type subscription struct {
	Subscriber
	busy atomic.Bool
}

type BroadcastStats struct {
	Subscribers int
	Queued      int
	Dropped     uint64
	Skipped     uint64
	Sent        uint64
	Failed      uint64
}

func NewBroadcastSink(size int, enc Encoder, live bool, log *logger.Logger) *BroadcastSink {
	if size <= 0 {
		size = defaultBroadcastQueue
	}
	b := &BroadcastSink{
		queue: make(chan Outbound, size),
		ctrl:  make(chan []byte, controlQueue),
		enc:   enc,
		subs:  com.NewMap[com.Uid, *subscription](),
		log:   log.Stage("cast"),
	}
	b.live.Store(live)
	return b
}

// Live tells whether every processed frame should be offered.
// When off, only explicit exports reach the viewers.
func (b *BroadcastSink) Live() bool { return b.live.Load() }

// Offer enqueues the frame or drops it if the queue is full. Never blocks.
func (b *BroadcastSink) Offer(o Outbound) bool {
	select {
	case b.queue <- o:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Push enqueues the frame evicting the oldest queued ones if needed.
func (b *BroadcastSink) Push(o Outbound) {
	for i := 0; i <= cap(b.queue); i++ {
		select {
		case b.queue <- o:
			return
		default:
		}
		select {
		case <-b.queue:
			b.dropped.Add(1)
		default:
		}
	}
	b.dropped.Add(1)
	b.log.Warn().Msg("Couldn't push the frame")
}

// Notify sends a control message to everyone, dropped if the control queue is full.
func (b *BroadcastSink) Notify(data []byte) {
	select {
	case b.ctrl <- data:
	default:
		b.dropped.Add(1)
		b.log.Warn().Msg("Control message dropped")
	}
}

func (b *BroadcastSink) Subscribe(s Subscriber) {
	b.subs.Put(s.Id(), &subscription{Subscriber: s})
	b.log.Debug().Str(logger.ClientField, s.Id().Short()).Msg("Subscribed")
}

func (b *BroadcastSink) Unsubscribe(s Subscriber) {
	if _, ok := b.subs.Pop(s.Id()); ok {
		b.log.Debug().Str(logger.ClientField, s.Id().Short()).Msg("Unsubscribed")
	}
}

func (b *BroadcastSink) Subscribers() int { return b.subs.Len() }

func (b *BroadcastSink) Stats() BroadcastStats {
	return BroadcastStats{
		Subscribers: b.subs.Len(),
		Queued:      len(b.queue),
		Dropped:     b.dropped.Load(),
		Skipped:     b.skipped.Load(),
		Sent:        b.sent.Load(),
		Failed:      b.failed.Load(),
	}
}

// Run is the fan-out loop, blocks until ctx is done.
func (b *BroadcastSink) Run(ctx context.Context) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-b.ctrl:
			b.deliver(data, false)
		case o := <-b.queue:
			b.fanout(o)
		}
	}
}

func (b *BroadcastSink) fanout(o Outbound) {
	if o.Frame == nil || b.subs.IsEmpty() {
		return
	}
	data, err := b.enc.Encode(o)
	if err != nil {
		b.log.Error().Err(err).Msg("Encode")
		return
	}
	b.deliver(data, true)
}

// deliver sends data to each subscriber in isolation.
// Frames skip subscribers still busy with a previous send,
// control messages are always sent.
func (b *BroadcastSink) deliver(data []byte, skipBusy bool) {
	for _, s := range b.subs.Values() {
		if skipBusy {
			if !s.busy.CompareAndSwap(false, true) {
				b.skipped.Add(1)
				continue
			}
		}
		b.wg.Add(1)
		go func(s *subscription) {
			defer b.wg.Done()
			if skipBusy {
				defer s.busy.Store(false)
			}
			if err := s.Send(data); err != nil {
				b.failed.Add(1)
				b.log.Warn().Err(err).Str(logger.ClientField, s.Id().Short()).Msg("Send failed, removing")
				b.Unsubscribe(s.Subscriber)
				return
			}
			b.sent.Add(1)
		}(s)
	}
}
