// Package sender implements the client side that reads standard input,
// partitions it into fixed-size packets round-robin across W workers, and
// PUTs each packet to the relay in order.
package sender

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ygrebnov/httppipe/internal/packet"
	"github.com/ygrebnov/httppipe/internal/pool"
	"github.com/ygrebnov/httppipe/internal/transport/retry"
	"github.com/ygrebnov/httppipe/internal/wire"
)

// Sender reads r and streams it to url as a sequence of PUT requests.
type Sender struct {
	cfg config
	url string
	log *logrus.Entry
}

// New constructs a Sender for the given endpoint URL.
func New(url string, log *logrus.Entry, opts ...Option) *Sender {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Sender{cfg: cfg, url: url, log: log}
}

// Run issues the RESET PUT, then reads r to EOF, dispatching packets
// round-robin across cfg.WorkerCount workers, and waits for every worker to
// finish draining its mailbox. It returns the dispatch error (reading r or
// ctx cancellation) if there was one, otherwise the first worker error, if any.
func (s *Sender) Run(ctx context.Context, r io.Reader) error {
	if err := s.reset(ctx); err != nil {
		return errors.Wrap(err, "reset")
	}

	bufs := pool.NewFixed(uint(s.cfg.WorkerCount), s.cfg.PacketSize)

	workers := make([]*worker, s.cfg.WorkerCount)
	for i := range workers {
		workers[i] = newWorker(i, s.url, s.log, bufs)
	}

	errCh := make(chan error, len(workers))
	for _, w := range workers {
		w := w
		go func() { errCh <- w.run(ctx) }()
	}

	dispatchErr := s.dispatch(ctx, r, workers, bufs)

	for _, w := range workers {
		close(w.mbox)
	}

	var firstErr error
	for range workers {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if dispatchErr != nil {
		return dispatchErr
	}
	return firstErr
}

func (s *Sender) reset(ctx context.Context) error {
	return retry.Do(ctx, s.log, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url, nil)
		if err != nil {
			return errors.Wrap(err, "building reset request")
		}
		req.Header.Set(wire.HeaderWorkerNum, strconv.Itoa(s.cfg.WorkerCount))

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "sending reset")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	})
}

// dispatch reads r in cfg.ReadBufferSize chunks, accumulates cfg.PacketSize
// worth of bytes per packet, and hands each packet to the next worker in
// rotation. Once r is exhausted, any bytes already accumulated for the
// in-flight packet are still sent as a regular (possibly short) packet; the
// empty EOF marker packet is a separate, final send to whichever worker is
// next in rotation after that.
func (s *Sender) dispatch(ctx context.Context, r io.Reader, workers []*worker, bufs pool.Pool) error {
	chunk := make([]byte, s.cfg.ReadBufferSize)
	var index uint64
	eof := false

	for i := 0; ; i = (i + 1) % len(workers) {
		data := bufs.Get()

		if !eof {
			for len(data) < s.cfg.PacketSize {
				want := s.cfg.PacketSize - len(data)
				if want > len(chunk) {
					want = len(chunk)
				}
				n, err := r.Read(chunk[:want])
				if n > 0 {
					data = append(data, chunk[:n]...)
				}
				if err == io.EOF {
					eof = true
					break
				}
				if err != nil {
					return errors.Wrap(err, "reading stdin")
				}
			}
		}

		p := packet.New(index, data)
		select {
		case workers[i].mbox <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
		index++

		if p.EOF() {
			return nil
		}
	}
}
