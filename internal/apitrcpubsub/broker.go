package apitrcpubsub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Broker fans published values out to subscribers. Publish never blocks: a
// subscriber whose channel is full misses the value, and the miss is counted
// as a drop in its stats.
type Broker[T any] struct {
	mtx         sync.Mutex
	subscribers map[chan<- T]*subscriber[T]
	active      atomic.Bool
}

type subscriber[T any] struct {
	allow func(T) bool
	ch    chan<- T
	stats Stats
}

// NewBroker returns an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subscribers: map[chan<- T]*subscriber[T]{},
	}
}

// Publish sends the value to every subscriber which allows it.
func (b *Broker[T]) Publish(val T) {
	if !b.active.Load() { // optimization
		return
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()

	for _, sub := range b.subscribers {
		if sub.allow != nil && !sub.allow(val) {
			sub.stats.Skips++
			continue
		}
		select {
		case sub.ch <- val:
			sub.stats.Sends++
		default:
			sub.stats.Drops++
		}
	}
}

// Subscribe sends every published value that passes the allow func to ch,
// until the context is canceled. It blocks until then, and returns the final
// stats for the subscription. A nil allow func allows everything.
func (b *Broker[T]) Subscribe(ctx context.Context, allow func(T) bool, ch chan<- T) (Stats, error) {
	if err := func() error {
		b.mtx.Lock()
		defer b.mtx.Unlock()

		if _, ok := b.subscribers[ch]; ok {
			return fmt.Errorf("already subscribed")
		}

		b.subscribers[ch] = &subscriber[T]{
			allow: allow,
			ch:    ch,
		}

		b.active.Store(true)

		return nil
	}(); err != nil {
		return Stats{}, err
	}

	<-ctx.Done()

	b.mtx.Lock()
	defer b.mtx.Unlock()

	sub, ok := b.subscribers[ch]
	if !ok {
		return Stats{}, fmt.Errorf("not subscribed (programmer error)")
	}

	delete(b.subscribers, ch)
	b.active.Store(len(b.subscribers) > 0)

	return sub.stats, ctx.Err()
}

// Stats returns the current stats for the subscription on ch.
func (b *Broker[T]) Stats(ch chan<- T) (Stats, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	sub, ok := b.subscribers[ch]
	if !ok {
		return Stats{}, fmt.Errorf("not subscribed")
	}

	return sub.stats, nil
}

// Subscribers returns the number of active subscriptions.
func (b *Broker[T]) Subscribers() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return len(b.subscribers)
}

// Stats counts what happened to the values published while a subscription was
// active.
type Stats struct {
	Skips uint64 `json:"skips"`
	Sends uint64 `json:"sends"`
	Drops uint64 `json:"drops"`
}

func (s Stats) String() string {
	return fmt.Sprintf("skips=%d sends=%d drops=%d", s.Skips, s.Sends, s.Drops)
}
