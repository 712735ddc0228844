package sender

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ygrebnov/httppipe/internal/packet"
	"github.com/ygrebnov/httppipe/internal/pool"
	"github.com/ygrebnov/httppipe/internal/transport/retry"
	"github.com/ygrebnov/httppipe/internal/wire"
)

// worker owns one of the W ingress mailboxes. It PUTs every packet handed to
// it to the endpoint in order, retrying forever on failure before accepting
// the next packet.
type worker struct {
	index  int
	url    string
	mbox   chan packet.Packet
	client *http.Client
	log    *logrus.Entry
	bufs   pool.Pool
}

func newWorker(index int, url string, log *logrus.Entry, bufs pool.Pool) *worker {
	return &worker{
		index:  index,
		url:    url,
		mbox:   make(chan packet.Packet, 1),
		client: &http.Client{},
		log:    log.WithField("worker", index),
		bufs:   bufs,
	}
}

// run drains the mailbox until it is closed or ctx is cancelled, PUTting
// each packet before accepting the next one. Once a packet's bytes have
// been sent successfully, its backing buffer is returned to the pool for
// the dispatcher to reuse on a later packet.
func (w *worker) run(ctx context.Context) error {
	for {
		select {
		case p, ok := <-w.mbox:
			if !ok {
				return nil
			}
			if err := retry.Do(ctx, w.log, func() error { return w.send(ctx, p) }); err != nil {
				return err
			}
			if len(p.Data) > 0 {
				w.bufs.Put(p.Data)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *worker) send(ctx context.Context, p packet.Packet) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, w.url, bytes.NewReader(p.Data))
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set(wire.HeaderWorker, strconv.Itoa(w.index))
	req.Header.Set(wire.HeaderIndex, strconv.FormatUint(p.Index, 10))

	resp, err := w.client.Do(req)
	if err != nil {
		// a poisoned connection should not be reused on retry.
		w.client = &http.Client{}
		return errors.Wrap(err, "sending packet")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		w.client = &http.Client{}
		return errors.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}
