// Package broadcast fans the domain event stream out to subscribers.
//
// Every event gets a global sequence number. Each subscriber has its own
// bounded FIFO queue and delivery goroutine, so a slow subscriber never
// blocks the publisher or the other subscribers. When a queue is full the
// oldest event is dropped and a warning is logged. A failed Handle is
// retried with backoff, so delivery is at-least-once; wrap subscribers with
// Dedup to make handling idempotent.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ports"
)

// Options tunes queues, retention and redelivery.
type Options struct {
	QueueSize   int           // per subscriber
	Retention   int           // events kept for replay
	RetryBase   time.Duration // first redelivery delay
	RetryMax    time.Duration
	MaxAttempts int // per event; 0 retries until the subscriber is removed
}

// DefaultOptions returns the settings used by the bot.
func DefaultOptions() Options {
	return Options{
		QueueSize:   1024,
		Retention:   4096,
		RetryBase:   100 * time.Millisecond,
		RetryMax:    5 * time.Second,
		MaxAttempts: 10,
	}
}

// Broadcaster stamps and distributes events.
type Broadcaster struct {
	opts Options
	now  func() time.Time

	mu     sync.Mutex
	seq    uint64
	ring   []domain.Event
	subs   map[*subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates a broadcaster. Zero option fields take the defaults.
func New(opts Options) *Broadcaster {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Retention <= 0 {
		opts.Retention = def.Retention
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = def.RetryBase
	}
	if opts.RetryMax < opts.RetryBase {
		opts.RetryMax = def.RetryMax
	}
	return &Broadcaster{
		opts: opts,
		now:  func() time.Time { return time.Now().UTC() },
		subs: make(map[*subscription]struct{}),
	}
}

// Publish stamps the payload with the next sequence number and enqueues it
// for every subscriber. It never blocks on delivery.
func (b *Broadcaster) Publish(p domain.Payload) domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev := domain.Event{Seq: b.seq, Time: b.now(), Payload: p}
	if b.closed {
		return ev
	}

	b.ring = append(b.ring, ev)
	if len(b.ring) > 2*b.opts.Retention {
		b.ring = append([]domain.Event(nil), b.ring[len(b.ring)-b.opts.Retention:]...)
	}
	for s := range b.subs {
		s.push(ev)
	}
	return ev
}

// LastSeq returns the sequence number of the latest event.
func (b *Broadcaster) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Since returns retained events with Seq > after. complete is false when
// older events were already evicted and the caller missed some.
func (b *Broadcaster) Since(after uint64) (events []domain.Event, complete bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.since(after)
}

func (b *Broadcaster) since(after uint64) ([]domain.Event, bool) {
	retained := b.ring
	if len(retained) > b.opts.Retention {
		retained = retained[len(retained)-b.opts.Retention:]
	}
	complete := len(retained) == 0 && after >= b.seq ||
		len(retained) > 0 && retained[0].Seq <= after+1
	var out []domain.Event
	for _, ev := range retained {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out, complete
}

// Subscribe registers sub for events published from now on. The returned
// function removes it and discards anything still queued.
func (b *Broadcaster) Subscribe(sub ports.Subscriber) func() {
	return b.subscribe(sub, nil)
}

// SubscribeAfter registers sub and first replays the retained events with
// Seq > after, with no gap or overlap with live events.
func (b *Broadcaster) SubscribeAfter(sub ports.Subscriber, after uint64) func() {
	return b.subscribe(sub, &after)
}

func (b *Broadcaster) subscribe(sub ports.Subscriber, after *uint64) func() {
	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		sub:    sub,
		limit:  b.opts.QueueSize,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return func() {}
	}
	if after != nil {
		replay, complete := b.since(*after)
		if !complete {
			slog.Warn("broadcast: replay incomplete, older events evicted",
				"subscriber", sub.Name(),
				"after", *after,
			)
		}
		for _, ev := range replay {
			s.push(ev)
		}
	}
	b.subs[s] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(s)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			s.cancel()
			s.stop()
		})
	}
}

// Close stops accepting events, lets every subscriber drain its queue and
// waits for the delivery goroutines to finish.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	b.wg.Wait()
	for _, s := range subs {
		s.cancel()
	}
}

func (b *Broadcaster) run(s *subscription) {
	defer b.wg.Done()
	for {
		if s.ctx.Err() != nil {
			return
		}
		if ev, ok := s.pop(); ok {
			b.deliver(s, ev)
			continue
		}
		select {
		case <-s.notify:
		case <-s.ctx.Done():
			return
		case <-s.done:
			for s.ctx.Err() == nil {
				ev, ok := s.pop()
				if !ok {
					return
				}
				b.deliver(s, ev)
			}
			return
		}
	}
}

func (b *Broadcaster) deliver(s *subscription, ev domain.Event) {
	delay := b.opts.RetryBase
	for attempt := 1; ; attempt++ {
		err := s.sub.Handle(s.ctx, ev)
		if err == nil {
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		if b.opts.MaxAttempts > 0 && attempt >= b.opts.MaxAttempts {
			slog.Error("broadcast: giving up on event",
				"subscriber", s.sub.Name(),
				"seq", ev.Seq,
				"type", ev.Type(),
				"attempts", attempt,
				"err", err,
			)
			return
		}
		slog.Warn("broadcast: handler failed, retrying",
			"subscriber", s.sub.Name(),
			"seq", ev.Seq,
			"attempt", attempt,
			"retry_in", delay,
			"err", err,
		)
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		case <-s.done:
			slog.Warn("broadcast: shutting down, event not delivered",
				"subscriber", s.sub.Name(),
				"seq", ev.Seq,
			)
			return
		}
		delay *= 2
		if delay > b.opts.RetryMax {
			delay = b.opts.RetryMax
		}
	}
}

type subscription struct {
	sub   ports.Subscriber
	limit int

	mu      sync.Mutex
	queue   []domain.Event
	dropped uint64
	stopped bool

	notify chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// push enqueues ev, evicting the oldest queued event when full.
func (s *subscription) push(ev domain.Event) {
	s.mu.Lock()
	if len(s.queue) >= s.limit {
		old := s.queue[0]
		s.queue = s.queue[1:]
		s.dropped++
		slog.Warn("broadcast: subscriber queue full, dropping oldest event",
			"subscriber", s.sub.Name(),
			"dropped_seq", old.Seq,
			"dropped_total", s.dropped,
		)
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return domain.Event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscription) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
}
