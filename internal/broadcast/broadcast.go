// Package broadcast provides multi-subscriber streams with ordered,
// non-blocking delivery.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sourcegraph/conc"
)

// Stream is the subscribe side of a Broadcaster.
type Stream[T any] interface {
	// Subscribe registers fn to receive every value published from now on.
	// The returned function unsubscribes; calling it more than once is fine.
	Subscribe(fn func(T)) (unsubscribe func())

	// SubscribeDone is Subscribe for callbacks that may block. done is closed
	// once the subscription ends, either by unsubscribe or by Close, and a
	// blocked callback must return when it is.
	SubscribeDone(fn func(v T, done <-chan struct{})) (unsubscribe func())
}

// Broadcaster fans values out to subscribers.
//
// Publish never waits for subscribers. Each subscriber owns a mailbox drained
// by its own goroutine, so a slow subscriber delays only itself and every
// subscriber observes values in publish order.
type Broadcaster[T any] struct {
	subs   *xsync.MapOf[uint64, *subscriber[T]]
	nextID atomic.Uint64
	wg     conc.WaitGroup

	// publishMu gives all subscribers the same total order.
	publishMu sync.Mutex
	closed    bool
}

// New creates an empty Broadcaster.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subs: xsync.NewMapOf[uint64, *subscriber[T]](),
	}
}

// Subscribe implements Stream. Subscribing to a closed Broadcaster returns a
// no-op unsubscribe and fn never runs.
func (b *Broadcaster[T]) Subscribe(fn func(T)) func() {
	return b.SubscribeDone(func(v T, _ <-chan struct{}) { fn(v) })
}

// SubscribeDone implements Stream.
func (b *Broadcaster[T]) SubscribeDone(fn func(T, <-chan struct{})) func() {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID.Add(1)
	sub := &subscriber[T]{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	b.subs.Store(id, sub)
	b.wg.Go(sub.run)

	return func() {
		b.subs.Delete(id)
		sub.stop()
	}
}

// Publish enqueues v for every current subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	if b.closed {
		return
	}

	b.subs.Range(func(_ uint64, sub *subscriber[T]) bool {
		sub.push(v)
		return true
	})
}

// Len reports the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	return b.subs.Size()
}

// Close drops all subscribers and waits for their goroutines to exit.
// It must not be called from inside a subscriber callback, and callbacks
// registered with Subscribe must not block indefinitely.
func (b *Broadcaster[T]) Close() {
	b.publishMu.Lock()
	if b.closed {
		b.publishMu.Unlock()
		return
	}
	b.closed = true
	b.subs.Range(func(id uint64, sub *subscriber[T]) bool {
		b.subs.Delete(id)
		sub.stop()
		return true
	})
	b.publishMu.Unlock()

	b.wg.Wait()
}

type subscriber[T any] struct {
	fn func(T, <-chan struct{})

	mu    sync.Mutex
	queue deque.Deque[T]

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	s.queue.PushBack(v)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscriber[T]) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if s.queue.Len() == 0 {
				s.mu.Unlock()
				break
			}
			v := s.queue.PopFront()
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(v, s.done)
		}
	}
}

// Channel adapts a stream to a channel with the given buffer. Values are
// handed over in order; a full channel holds back only this subscription.
// The channel is never closed; stop ends the subscription. A consumer that
// stops reading does not hold up Close of the underlying Broadcaster.
func Channel[T any](s Stream[T], buf int) (<-chan T, func()) {
	ch := make(chan T, buf)

	stop := s.SubscribeDone(func(v T, done <-chan struct{}) {
		select {
		case ch <- v:
		case <-done:
		}
	})
	return ch, stop
}
