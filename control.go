package offlinecache

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ControlPrefix is the path prefix of the worker's own endpoints.
const ControlPrefix = "/.offline-cache"

const maxMessageSize = 1 << 20

type status struct {
	State         string     `json:"state"`
	Controlling   bool       `json:"controlling"`
	Partitions    []string   `json:"partitions"`
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

type syncRequest struct {
	Tag string `json:"tag"`
}

// NewRouter mounts the control endpoints under ControlPrefix and hands every
// other request to the worker.
func NewRouter(w *Worker) http.Handler {
	r := chi.NewRouter()
	r.Route(ControlPrefix, func(r chi.Router) {
		r.Post("/message", w.handleMessage)
		r.Post("/sync", w.handleSync)
		r.Post("/register", w.handleRegister)
		r.Get("/status", w.handleStatus)
		r.Handle("/metrics", w.metrics.Handler())
	})
	r.Handle("/*", w)
	return r
}

func (w *Worker) handleMessage(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	msg, err := DecodeMessage(body)
	if err != nil {
		w.log.Warn().Err(err).Msg("Invalid message")
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	if err := w.Dispatch(r.Context(), msg); err != nil {
		w.log.Error().Err(err).Str("type", msg.Type()).Msg("Message failed")
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNotInstalled) {
			status = http.StatusConflict
		}
		http.Error(rw, err.Error(), status)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (w *Worker) handleSync(rw http.ResponseWriter, r *http.Request) {
	req := syncRequest{Tag: SyncTag}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageSize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
	}
	flushed, err := w.Sync(r.Context(), req.Tag)
	if err != nil {
		w.log.Error().Err(err).Msg("Background sync failed")
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(rw, map[string]int{"flushed": flushed})
}

func (w *Worker) handleRegister(rw http.ResponseWriter, r *http.Request) {
	if err := w.Register(r.Context()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrInstalling) {
			status = http.StatusConflict
		}
		http.Error(rw, err.Error(), status)
		return
	}
	w.handleStatus(rw, r)
}

func (w *Worker) handleStatus(rw http.ResponseWriter, r *http.Request) {
	s := w.session.Snapshot()
	st := status{
		State:         w.State().String(),
		Controlling:   w.controlling.Load(),
		Partitions:    w.names.All(),
		Authenticated: s.Authenticated,
	}
	if s.Authenticated {
		st.ExpiresAt = &s.ExpiresAt
	}
	writeJSON(rw, st)
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(v)
}
