package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/trickstertwo/xcomm"
	"github.com/trickstertwo/xlog"
)

type server struct {
	svc    xcomm.API
	tr     xcomm.Transport
	logger *xlog.Logger
}

func newRouter(s *server, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/communicationMessage", func(r chi.Router) {
		r.Post("/", s.create)
		r.Get("/", s.list)
		r.Get("/{id}", s.get)
		r.Patch("/{id}", s.update)
		r.Delete("/{id}", s.remove)
		r.Post("/{id}/send", s.send)
		r.Post("/{id}/cancel", s.cancel)
		r.Get("/{id}/events", s.events)
	})

	r.Post("/hub", s.registerListener)
	r.Delete("/hub/{id}", s.unregisterListener)
	return r
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	hs := s.svc.Health(r.Context())
	code := http.StatusOK
	if hs.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": hs.Status, "message": hs.Message, "timestamp": hs.Timestamp})
}

func (s *server) create(w http.ResponseWriter, r *http.Request) {
	var nm xcomm.NewMessage
	if err := json.NewDecoder(r.Body).Decode(&nm); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	msg, err := s.svc.Create(r.Context(), nm)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *server) get(w http.ResponseWriter, r *http.Request) {
	msg, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (s *server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := xcomm.MessageFilter{
		State:       xcomm.State(q.Get("state")),
		MessageType: xcomm.MessageType(q.Get("messageType")),
		Limit:       defaultListLimit,
	}
	var err error
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if f.Limit, err = intParam(q.Get("limit"), defaultListLimit); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f.Limit = min(max(f.Limit, 1), maxListLimit)
	msgs, err := s.svc.List(r.Context(), f)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid non-negative integer %q", v)
	}
	return n, nil
}

func (s *server) remove(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) update(w http.ResponseWriter, r *http.Request) {
	var patch xcomm.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	msg, err := s.svc.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *server) send(w http.ResponseWriter, r *http.Request) {
	msg, err := s.svc.Send(r.Context(), chi.URLParam(r, "id"), s.tr)
	var terr *xcomm.TransportError
	if errors.As(err, &terr) {
		// Delivery ran and ended in failed; report the final message.
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "message": msg})
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *server) cancel(w http.ResponseWriter, r *http.Request) {
	msg, err := s.svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *server) events(w http.ResponseWriter, r *http.Request) {
	f := xcomm.EventFilter{
		MessageID: chi.URLParam(r, "id"),
		EventType: xcomm.EventType(r.URL.Query().Get("eventType")),
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		f.Since = t
	}
	evs, err := s.svc.Events(r.Context(), f)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

type hubRequest struct {
	Callback string `json:"callback"`
	Query    string `json:"query"`
}

func (s *server) registerListener(w http.ResponseWriter, r *http.Request) {
	var req hubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	l, err := s.svc.RegisterListener(r.Context(), req.Callback, req.Query)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *server) unregisterListener(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.UnregisterListener(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, code, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, xcomm.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, xcomm.ErrInvalidMessage), errors.Is(err, xcomm.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, xcomm.ErrInvalidState), errors.Is(err, xcomm.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, xcomm.ErrHistoryUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, xcomm.ErrEngineClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
