// Package subscriber implements the dynamic set of live log consumers that
// a process supervisor fans records out to.
package subscriber

import (
	"sync"

	"github.com/ryym/procfleet/internal/logrecord"
)

// DefaultCapacity is the per-subscriber queue capacity, matching the
// ring buffer's capacity so a full replay always fits.
const DefaultCapacity = 1000

// Subscriber is a single live consumer's delivery endpoint: a bounded
// channel of records plus a closed flag so broadcast/unsubscribe never
// panic on a double-close. Identity is by pointer.
type Subscriber struct {
	ch     chan logrecord.Record
	mu     sync.Mutex
	closed bool
}

func newSubscriber(capacity int) *Subscriber {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Subscriber{ch: make(chan logrecord.Record, capacity)}
}

// Records returns the channel of delivered records. It is closed when the
// subscriber is removed from its Set, signalling end-of-stream to a ranging
// consumer.
func (s *Subscriber) Records() <-chan logrecord.Record {
	return s.ch
}

// send performs a blocking enqueue, used only for replay delivery which is
// guaranteed to fit because the queue capacity matches the ring buffer's.
func (s *Subscriber) send(rec logrecord.Record) {
	s.ch <- rec
}

// trySend performs a non-blocking enqueue. It reports false if the queue
// was full (caller should then evict this subscriber).
func (s *Subscriber) trySend(rec logrecord.Record) bool {
	select {
	case s.ch <- rec:
		return true
	default:
		return false
	}
}

// close closes the delivery channel. Idempotent.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Set is the dynamic collection of a supervisor's live subscribers. All
// methods are safe only when called under the owning supervisor's lock
// (Set itself holds no lock of its own, by design — see Supervisor).
type Set struct {
	subs map[*Subscriber]struct{}
}

// NewSet creates an empty subscriber set.
func NewSet() *Set {
	return &Set{subs: make(map[*Subscriber]struct{})}
}

// Add allocates a new Subscriber with the given queue capacity and inserts
// it into the set.
func (s *Set) Add(capacity int) *Subscriber {
	sub := newSubscriber(capacity)
	s.subs[sub] = struct{}{}
	return sub
}

// Remove removes sub from the set and closes its channel. Idempotent: a
// sub no longer present is a no-op.
func (s *Set) Remove(sub *Subscriber) {
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	sub.close()
}

// RemoveAll closes and removes every subscriber, used when a supervisor
// stops so live consumers observe end-of-stream.
func (s *Set) RemoveAll() {
	for sub := range s.subs {
		delete(s.subs, sub)
		sub.close()
	}
}

// Broadcast delivers rec to every subscriber with a non-blocking send. Any
// subscriber whose queue is full is evicted; a slow consumer never blocks
// the broadcaster, the drain worker, or other subscribers.
func (s *Set) Broadcast(rec logrecord.Record) {
	var dead []*Subscriber
	for sub := range s.subs {
		if !sub.trySend(rec) {
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		s.Remove(sub)
	}
}

// Replay delivers each record of backlog to sub, in order, using a
// blocking send. Must be called before sub is exposed to a caller that
// might race live broadcasts, i.e. while still holding the lock that also
// guards Add/Broadcast (see Supervisor.Subscribe).
func Replay(sub *Subscriber, backlog []logrecord.Record) {
	for _, rec := range backlog {
		sub.send(rec)
	}
}

// Len reports how many subscribers are currently registered. Primarily for
// tests and diagnostics.
func (s *Set) Len() int {
	return len(s.subs)
}
