package receiver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/httppipe/internal/wire"
)

// fakeRelay serves a fixed slice of packets, keyed by index, and records the
// most recently acked index and whether teardown was requested.
type fakeRelay struct {
	mu       sync.Mutex
	packets  map[uint64][]byte
	lastAck  int64
	torndown bool
}

func newFakeRelay(data map[uint64][]byte) *fakeRelay {
	return &fakeRelay{packets: data, lastAck: -1}
}

func (f *fakeRelay) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.Header.Get(wire.HeaderReset) != "" {
			f.torndown = true
			w.WriteHeader(http.StatusOK)
			return
		}

		if ack := r.Header.Get(wire.HeaderAck); ack != "" {
			if n, err := strconv.ParseInt(ack, 10, 64); err == nil {
				f.lastAck = n
			}
		}

		idx, err := strconv.ParseUint(r.Header.Get(wire.HeaderIndex), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		body, ok := f.packets[idx]
		if !ok {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func newLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log.WithField("test", true)
}

func TestReceiveSmallStreamInOrder(t *testing.T) {
	relay := newFakeRelay(map[uint64][]byte{
		0: []byte("a"),
		1: []byte("b"),
		2: {}, // EOF
	})
	srv := httptest.NewServer(relay.handler())
	defer srv.Close()

	var out bytes.Buffer
	r := New(srv.URL, newLogger(), WithWorkerCount(2))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, r.Run(ctx, &out))
	require.Equal(t, "ab", out.String())

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.True(t, relay.torndown)
}

func TestReceiveEmptyStreamWritesNothing(t *testing.T) {
	relay := newFakeRelay(map[uint64][]byte{
		0: {}, // EOF immediately, owned by worker 0
		1: {},
	})
	srv := httptest.NewServer(relay.handler())
	defer srv.Close()

	var out bytes.Buffer
	r := New(srv.URL, newLogger(), WithWorkerCount(2))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, r.Run(ctx, &out))
	require.Empty(t, out.String())
}

func TestReceiveEightPacketsFourWorkers(t *testing.T) {
	data := map[uint64][]byte{}
	for i := 0; i < 8; i++ {
		data[uint64(i)] = []byte{byte('0' + i)}
	}
	data[8] = []byte{} // EOF, owned by worker 0 (8 % 4 == 0)

	relay := newFakeRelay(data)
	srv := httptest.NewServer(relay.handler())
	defer srv.Close()

	var out bytes.Buffer
	r := New(srv.URL, newLogger(), WithWorkerCount(4))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, r.Run(ctx, &out))
	require.Equal(t, "01234567", out.String())
}
