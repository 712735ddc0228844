package receiver

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ygrebnov/httppipe/internal/transport/retry"
	"github.com/ygrebnov/httppipe/internal/wire"
)

// worker owns every Wth index of the global stream, starting at its own
// index and advancing by workerCount on each successfully fetched packet.
// It acks the previous index on the next request (ack-trails-by-one), so
// the relay can evict a packet only once the receiver has moved past it.
type worker struct {
	index       uint64
	workerCount int
	url         string
	client      *http.Client
	log         *logrus.Entry
	out         chan []byte
}

func newWorker(start uint64, workerCount int, url string, log *logrus.Entry) *worker {
	return &worker{
		index:       start,
		workerCount: workerCount,
		url:         url,
		client:      &http.Client{},
		log:         log.WithField("worker", start),
		out:         make(chan []byte, 1),
	}
}

// run fetches packets in order and forwards their bytes to out, until it
// receives the empty-body EOF packet or ctx is cancelled.
func (w *worker) run(ctx context.Context) error {
	var ack *uint64
	for {
		body, err := w.fetchWithRetry(ctx, ack)
		if err != nil {
			close(w.out)
			return err
		}
		if len(body) == 0 {
			close(w.out)
			return nil
		}

		prev := w.index
		ack = &prev
		w.index += uint64(w.workerCount)

		select {
		case w.out <- body:
		case <-ctx.Done():
			close(w.out)
			return ctx.Err()
		}
	}
}

func (w *worker) fetchWithRetry(ctx context.Context, ack *uint64) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, w.log, func() error {
		b, err := w.fetch(ctx, ack)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

func (w *worker) fetch(ctx context.Context, ack *uint64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set(wire.HeaderIndex, strconv.FormatUint(w.index, 10))
	if ack != nil {
		req.Header.Set(wire.HeaderAck, strconv.FormatUint(*ack, 10))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching packet")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}
	return body, nil
}
