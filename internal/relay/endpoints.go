package relay

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ygrebnov/httppipe/internal/metrics"
)

// Endpoints is the process-wide mapping from URL path to live Conn. Reads
// happen on every request; inserts/removes happen once per stream (RESET).
// The mutex is only ever held across the map lookup/mutation itself, never
// across a Queue or mailbox operation.
type Endpoints struct {
	mu    sync.Mutex
	conns map[string]*Conn
	log   *logrus.Logger
	prov  metrics.Provider
}

// NewEndpoints constructs an empty endpoints map.
func NewEndpoints(log *logrus.Logger, prov metrics.Provider) *Endpoints {
	if prov == nil {
		prov = metrics.NewNoopProvider()
	}
	return &Endpoints{conns: make(map[string]*Conn), log: log, prov: prov}
}

// Reset creates a fresh Conn with workerNum mailboxes at path, replacing and
// tearing down any prior Conn there.
func (e *Endpoints) Reset(path string, workerNum int) (*Conn, error) {
	c, err := newConn(workerNum, e.log.WithField("path", path), e.prov)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	old := e.conns[path]
	e.conns[path] = c
	e.mu.Unlock()

	if old != nil {
		old.Close()
	}

	return c, nil
}

// Get returns the live Conn at path, if any.
func (e *Endpoints) Get(path string) (*Conn, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[path]
	return c, ok
}

// Teardown removes and closes the Conn at path, a no-op if absent.
func (e *Endpoints) Teardown(path string) {
	e.mu.Lock()
	c, ok := e.conns[path]
	if ok {
		delete(e.conns, path)
	}
	e.mu.Unlock()

	if ok {
		c.Close()
	}
}
