// Package queue implements the relay's per-channel bounded, ordered, indexed
// packet buffer.
//
// A Queue holds at most Capacity slots (present packets or holes left by
// Remove) in strictly increasing index order. Producers suspend on Push when
// the buffer is full; the single logical consumer suspends on Get when the
// requested index has not arrived yet. Suspension is FIFO per side: the
// first caller to block is the first one woken by the complementary
// operation, mirroring the hand-rolled waker lists of the Rust original this
// package is ported from (there, a bounded mailbox had no index-addressed
// read; here context.Context gives us cancellation for free instead).
package queue

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/ygrebnov/httppipe/internal/packet"
)

// DefaultCapacity is the relay's fixed per-channel queue capacity (spec: C=16).
const DefaultCapacity = 16

// ErrCapacity is returned by New when called with a non-positive capacity.
var ErrCapacity = errors.New("queue: capacity must be positive")

// Queue is a bounded, ordered, indexed packet buffer. The zero value is not
// usable; construct with New.
type Queue struct {
	mu       sync.Mutex
	capacity int
	slots    []*packet.Packet // present entries in index order; nil = hole
	base     uint64           // index of slots[0], meaningful only when len(slots) > 0

	writers waiterList
	readers waiterList
}

// New constructs a Queue with the given capacity.
func New(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, ErrCapacity
	}
	return &Queue{capacity: capacity}, nil
}

// Push appends p to the tail. It blocks until there is room, ctx is done, or
// a concurrent Remove frees a slot. The contract does not validate p.Index;
// callers (the sequencer) are responsible for monotonic, gap-free indices.
func (q *Queue) Push(ctx context.Context, p packet.Packet) error {
	for {
		q.mu.Lock()
		if len(q.slots) < q.capacity {
			if len(q.slots) == 0 {
				q.base = p.Index
			}
			pp := p
			q.slots = append(q.slots, &pp)
			q.readers.wakeOne()
			q.mu.Unlock()
			return nil
		}

		w := q.writers.register()
		q.mu.Unlock()

		select {
		case <-w:
			// woken by a Remove; recheck under lock.
		case <-ctx.Done():
			q.mu.Lock()
			q.writers.forget(w)
			q.mu.Unlock()
			return ctx.Err()
		}
	}
}

// Get resolves the packet at index, or (zero, false) if that index has
// already been evicted or was individually removed. It blocks while the
// queue is empty, whatever index is asked for, and when index refers to a
// position not yet produced.
func (q *Queue) Get(ctx context.Context, index uint64) (packet.Packet, bool, error) {
	for {
		q.mu.Lock()
		if len(q.slots) == 0 {
			r := q.readers.register()
			q.mu.Unlock()

			select {
			case <-r:
				continue
			case <-ctx.Done():
				q.mu.Lock()
				q.readers.forget(r)
				q.mu.Unlock()
				return packet.Packet{}, false, ctx.Err()
			}
		}

		base := q.base
		if index < base {
			q.mu.Unlock()
			return packet.Packet{}, false, nil
		}

		if offset := index - base; offset < uint64(len(q.slots)) {
			slot := q.slots[offset]
			q.mu.Unlock()
			if slot == nil {
				return packet.Packet{}, false, nil
			}
			return *slot, true, nil
		}

		r := q.readers.register()
		q.mu.Unlock()

		select {
		case <-r:
			continue
		case <-ctx.Done():
			q.mu.Lock()
			q.readers.forget(r)
			q.mu.Unlock()
			return packet.Packet{}, false, ctx.Err()
		}
	}
}

// Remove marks index as a hole, a no-op if index is already evicted, out of
// range, or already a hole; it reports whether a present packet was
// actually removed. Leading holes are then collapsed, which may free
// capacity for one blocked Push.
func (q *Queue) Remove(index uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.slots) == 0 || index < q.base {
		return false
	}

	offset := index - q.base
	if offset >= uint64(len(q.slots)) || q.slots[offset] == nil {
		return false
	}
	q.slots[offset] = nil

	popped := false
	for len(q.slots) > 0 && q.slots[0] == nil {
		q.slots = q.slots[1:]
		q.base++
		popped = true
	}

	if popped {
		q.writers.wakeOne()
	}
	return true
}

// Len reports the current buffer length, holes included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}

// waiterList is a FIFO list of blocked callers. register appends a new
// single-shot notification channel; wakeOne pops and fires the oldest one.
// Callers must hold the owning Queue's mutex while calling register/wakeOne,
// and must not hold it while blocking on the returned channel.
type waiterList struct {
	waiters []chan struct{}
}

func (l *waiterList) register() chan struct{} {
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	return ch
}

func (l *waiterList) wakeOne() {
	if len(l.waiters) == 0 {
		return
	}
	ch := l.waiters[0]
	l.waiters = l.waiters[1:]
	close(ch)
}

// forget removes ch from the list if it is still pending, e.g. because the
// caller's context was cancelled before it was woken.
func (l *waiterList) forget(ch chan struct{}) {
	for i, w := range l.waiters {
		if w == ch {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}
