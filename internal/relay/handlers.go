// Package relay implements the HTTP side of the channel manager: the
// endpoints map, per-channel Conn and sequencer, and the four request
// handlers described by the wire protocol (reset, ingest, drain, teardown).
package relay

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ygrebnov/httppipe/internal/metrics"
	"github.com/ygrebnov/httppipe/internal/packet"
	"github.com/ygrebnov/httppipe/internal/wire"
)

// Handler owns the endpoints map and exposes it as an HTTP router.
type Handler struct {
	endpoints *Endpoints
	log       *logrus.Logger
}

// NewHandler constructs a Handler backed by a fresh endpoints map.
func NewHandler(log *logrus.Logger, prov metrics.Provider) *Handler {
	return &Handler{endpoints: NewEndpoints(log, prov), log: log}
}

// Router returns the gorilla/mux router serving the /{id} channel endpoint.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/{id}", h.put).Methods(http.MethodPut)
	r.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
	return r
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["id"]

	if r.Header.Get(wire.HeaderWorkerNum) != "" {
		h.reset(w, r, path)
		return
	}
	h.ingest(w, r, path)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["id"]

	if r.Header.Get(wire.HeaderReset) != "" {
		h.teardown(w, r, path)
		return
	}
	h.drain(w, r, path)
}

// reset handles PUT with x-worker-num: create/replace the channel.
func (h *Handler) reset(w http.ResponseWriter, r *http.Request, path string) {
	n, err := parseUintHeader(r, wire.HeaderWorkerNum)
	if err != nil {
		h.fail(w, badRequest(path, err))
		return
	}
	if n == 0 {
		h.fail(w, badRequest(path, errors.New("x-worker-num must be positive")))
		return
	}

	h.log.WithField("path", path).Debug("RESET")

	if _, err := h.endpoints.Reset(path, int(n)); err != nil {
		h.fail(w, internal(path, err))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ingest handles PUT with x-worker/x-index: submit one packet.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, path string) {
	wi, err := parseUintHeader(r, wire.HeaderWorker)
	if err != nil {
		h.fail(w, badRequest(path, err))
		return
	}
	di, err := parseUintHeader(r, wire.HeaderIndex)
	if err != nil {
		h.fail(w, badRequest(path, err))
		return
	}

	conn, ok := h.endpoints.Get(path)
	if !ok {
		h.fail(w, preconditionFailed(path, errors.New("no active channel")))
		return
	}

	mbox, ok := conn.mailbox(int(wi))
	if !ok {
		h.fail(w, badRequest(path, errors.Errorf("worker index %d out of range", wi)))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, internal(path, errors.Wrap(err, "reading request body")))
		return
	}

	h.log.WithField("path", path).Debugf("PUT worker=%d index=%d", wi, di)

	select {
	case mbox <- packet.New(di, body):
	case <-r.Context().Done():
		return
	}

	w.WriteHeader(http.StatusOK)
}

// drain handles GET with x-index (and optional x-ack): fetch one packet.
func (h *Handler) drain(w http.ResponseWriter, r *http.Request, path string) {
	conn, ok := h.endpoints.Get(path)
	if !ok {
		h.fail(w, preconditionFailed(path, errors.New("no active channel")))
		return
	}

	if ackHeader := r.Header.Get(wire.HeaderAck); ackHeader != "" {
		ack, err := parseUintHeader(r, wire.HeaderAck)
		if err != nil {
			h.fail(w, badRequest(path, err))
			return
		}
		conn.Ack(ack)
	}

	di, err := parseUintHeader(r, wire.HeaderIndex)
	if err != nil {
		h.fail(w, badRequest(path, err))
		return
	}

	h.log.WithField("path", path).Debugf("GET index=%d", di)

	p, found, err := conn.queue.Get(r.Context(), di)
	if err != nil {
		// request cancelled client-side; nothing to write back.
		return
	}
	if !found {
		h.fail(w, gone(path, errors.Errorf("index %d already evicted", di)))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Data)
}

// teardown handles GET with x-reset: free the channel.
func (h *Handler) teardown(w http.ResponseWriter, r *http.Request, path string) {
	h.log.WithField("path", path).Debug("FIN")
	h.endpoints.Teardown(path)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) fail(w http.ResponseWriter, err *statusError) {
	h.log.WithError(err).WithField("status", err.status).Debug("request failed")
	http.Error(w, err.Error(), err.status)
}

func parseUintHeader(r *http.Request, name string) (uint64, error) {
	v := r.Header.Get(name)
	if v == "" {
		return 0, errors.Errorf("missing required header %s", name)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing header %s", name)
	}
	return n, nil
}
