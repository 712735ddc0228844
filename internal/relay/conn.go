package relay

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ygrebnov/httppipe/internal/metrics"
	"github.com/ygrebnov/httppipe/internal/packet"
	"github.com/ygrebnov/httppipe/internal/queue"
)

// Conn is the live state of one channel (one URL path): the per-worker
// ingress mailboxes, the outbound Queue, and the sequencer goroutine that
// drains the mailboxes in round-robin order into the Queue.
type Conn struct {
	senders []chan packet.Packet
	queue   *queue.Queue

	queueDepth metrics.UpDownCounter

	cancel context.CancelFunc
}

// newConn constructs a Conn with workerNum single-slot mailboxes and a fresh
// Queue of capacity queue.DefaultCapacity, then spawns its sequencer.
func newConn(workerNum int, log *logrus.Entry, prov metrics.Provider) (*Conn, error) {
	q, err := queue.New(queue.DefaultCapacity)
	if err != nil {
		return nil, err
	}

	senders := make([]chan packet.Packet, workerNum)
	for i := range senders {
		senders[i] = make(chan packet.Packet, 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		senders:    senders,
		queue:      q,
		queueDepth: prov.UpDownCounter("relay_sequencer_queue_depth"),
		cancel:     cancel,
	}

	go c.sequence(ctx, log, prov)

	return c, nil
}

// sequence drains the worker mailboxes in round-robin order (0, 1, ..., W-1,
// 0, ...), pushing each packet onto the Queue. It expects the i-th packet it
// pushes to carry index i; duplicates (index < expected, arising from a
// client's retried PUT) are silently skipped by re-reading the same worker's
// mailbox rather than advancing the rotation. It exits once it pushes an EOF
// packet, when ctx is cancelled (channel torn down or replaced), or when any
// mailbox is closed.
func (c *Conn) sequence(ctx context.Context, log *logrus.Entry, prov metrics.Provider) {
	pushed := prov.Counter("relay_sequencer_packets_pushed_total")
	duplicates := prov.Counter("relay_sequencer_duplicates_skipped_total")
	pushLatency := prov.Histogram("relay_sequencer_push_latency_seconds")

	expected := uint64(0)
	n := len(c.senders)

	for i := 0; ; {
		select {
		case <-ctx.Done():
			return

		case p, ok := <-c.senders[i]:
			if !ok {
				return
			}
			if p.Index < expected {
				duplicates.Add(1)
				continue
			}

			start := time.Now()
			if err := c.queue.Push(ctx, p); err != nil {
				log.WithError(err).Debug("sequencer: push cancelled")
				return
			}
			pushLatency.Record(time.Since(start).Seconds())
			pushed.Add(1)
			c.queueDepth.Add(1)
			expected++

			if p.EOF() {
				return
			}
			i = (i + 1) % n
		}
	}
}

// mailbox returns the ingress channel for worker wi, or false if wi is out of range.
func (c *Conn) mailbox(wi int) (chan packet.Packet, bool) {
	if wi < 0 || wi >= len(c.senders) {
		return nil, false
	}
	return c.senders[wi], true
}

// Ack removes index from the outbound Queue (a no-op if already evicted)
// and reflects an actual eviction in the queue depth instrument.
func (c *Conn) Ack(index uint64) {
	if c.queue.Remove(index) {
		c.queueDepth.Add(-1)
	}
}

// Close cancels the sequencer, so a Push it has suspended on this Conn's
// Queue returns. Get callers suspended on the Queue are not released by
// Close; they wait on their own request context.
func (c *Conn) Close() {
	c.cancel()
}
