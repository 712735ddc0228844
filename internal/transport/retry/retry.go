// Package retry implements the one retry policy shared by every sender and
// receiver worker: on failure, sleep a fixed interval and try again,
// indefinitely. There is no budget, no jitter, and no cap — spec.md is
// explicit that this is deliberately primitive.
package retry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Backoff is the fixed sleep between attempts.
const Backoff = 3 * time.Second

// Do calls fn until it returns nil or ctx is done. Between failing attempts
// it sleeps Backoff. The caller's fn is responsible for mapping whatever it
// considers a transient failure (non-2xx status, transport error) into a
// non-nil error; Do does not distinguish error kinds.
func Do(ctx context.Context, log *logrus.Entry, fn func() error) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}

		log.WithError(err).Debug("http error")

		select {
		case <-time.After(Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
