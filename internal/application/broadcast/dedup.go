package broadcast

import (
	"context"
	"sync"

	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ports"
)

// Dedup drops events whose sequence number was already handled, turning
// at-least-once delivery into effectively-once handling.
type Dedup struct {
	next ports.Subscriber

	mu   sync.Mutex
	last uint64
}

// NewDedup wraps a subscriber.
func NewDedup(next ports.Subscriber) *Dedup {
	return &Dedup{next: next}
}

func (d *Dedup) Name() string { return d.next.Name() }

// Handle forwards events newer than the last handled one.
func (d *Dedup) Handle(ctx context.Context, e domain.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e.Seq <= d.last {
		return nil
	}
	if err := d.next.Handle(ctx, e); err != nil {
		return err
	}
	d.last = e.Seq
	return nil
}

// LastSeq returns the sequence of the last handled event.
func (d *Dedup) LastSeq() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Func adapts a function to ports.Subscriber.
type Func struct {
	name string
	fn   func(ctx context.Context, e domain.Event) error
}

// SubscriberFunc builds a named subscriber from fn.
func SubscriberFunc(name string, fn func(ctx context.Context, e domain.Event) error) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Handle(ctx context.Context, e domain.Event) error { return f.fn(ctx, e) }
