// Package receiver implements the client side that GETs packets from the
// relay in round-robin worker order and writes their bytes to standard
// output in stream order.
package receiver

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ygrebnov/httppipe/internal/transport/retry"
	"github.com/ygrebnov/httppipe/internal/wire"
)

// Receiver GETs url's packets and writes them to w in stream order.
type Receiver struct {
	cfg config
	url string
	log *logrus.Entry
}

// New constructs a Receiver for the given endpoint URL.
func New(url string, log *logrus.Entry, opts ...Option) *Receiver {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Receiver{cfg: cfg, url: url, log: log}
}

// Run spawns cfg.WorkerCount workers, each owning every Wth index of the
// stream, and writes their output to w in round-robin order until the first
// worker reports EOF. It then issues a best-effort RESET GET teardown.
//
// Once the stream is drained, any worker still blocked on a GET for an index
// past the last real packet is cancelled: there is no further data coming
// and nothing else will ever unblock it.
func (rc *Receiver) Run(ctx context.Context, w io.Writer) error {
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	workers := make([]*worker, rc.cfg.WorkerCount)
	for i := range workers {
		workers[i] = newWorker(uint64(i), rc.cfg.WorkerCount, rc.url, rc.log)
	}

	var wg sync.WaitGroup
	runErrs := make([]error, len(workers))
	for i, wkr := range workers {
		wg.Add(1)
		go func(i int, wkr *worker) {
			defer wg.Done()
			runErrs[i] = wkr.run(workerCtx)
		}(i, wkr)
	}

	driveErr := rc.drive(ctx, w, workers)
	cancelWorkers()
	wg.Wait()

	teardownErr := rc.teardown(ctx)

	if driveErr != nil {
		return driveErr
	}
	for _, err := range runErrs {
		if err != nil && errors.Is(err, context.Canceled) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return teardownErr
}

// drive reads from each worker's output channel in round-robin order and
// writes the bytes to w. It stops as soon as any worker's channel closes,
// since that worker's position in the rotation is where the stream's EOF
// packet landed and every earlier index has already been written.
func (rc *Receiver) drive(ctx context.Context, w io.Writer, workers []*worker) error {
	for i := 0; ; i = (i + 1) % len(workers) {
		select {
		case body, ok := <-workers[i].out:
			if !ok {
				return nil
			}
			if _, err := w.Write(body); err != nil {
				return errors.Wrap(err, "writing stdout")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (rc *Receiver) teardown(ctx context.Context) error {
	return retry.Do(ctx, rc.log, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.url, nil)
		if err != nil {
			return errors.Wrap(err, "building teardown request")
		}
		req.Header.Set(wire.HeaderReset, "1")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "sending teardown")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	})
}
