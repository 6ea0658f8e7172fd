// Package api exposes the session controller over a small local HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"hotmic/internal/domain"
	xlog "hotmic/internal/log"
	"hotmic/internal/usecase"
)

// Controller is what the API drives.
type Controller interface {
	Status() domain.Status
	Toggle(ctx context.Context) error
	Finish()
	Dispatch(ctx context.Context, action domain.ControlAction) error
	TogglePlayback(ctx context.Context) error
	ExpectSpeech(ctx context.Context)
}

const playPauseAction = "playpause"

type handlers struct {
	ctrl   Controller
	logger zerolog.Logger
}

// NewRouter builds the chi router with the canonical middleware stack.
func NewRouter(ctrl Controller) http.Handler {
	h := &handlers{ctrl: ctrl, logger: xlog.WithComponent("api")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))

	r.Get("/status", h.status)
	r.Post("/toggle", h.toggle)
	r.Post("/finish", h.finish)
	r.Post("/actions/{action}", h.action)
	r.Post("/directives/expect-speech", h.expectSpeech)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// NewServer wraps the router in an http.Server bound to addr.
func NewServer(addr string, ctrl Controller) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(ctrl),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *handlers) toggle(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Toggle(r.Context()); err != nil {
		switch {
		case errors.Is(err, usecase.ErrCaptureStart):
			writeServiceUnavailable(w, err)
		case errors.Is(err, usecase.ErrControllerClosed):
			writeServiceUnavailable(w, err)
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusAccepted, h.ctrl.Status())
}

func (h *handlers) finish(w http.ResponseWriter, _ *http.Request) {
	h.ctrl.Finish()
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *handlers) action(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "action")
	if name == playPauseAction {
		if err := h.ctrl.TogglePlayback(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"action": name})
		return
	}

	action, err := domain.ParseControlAction(name)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.ctrl.Dispatch(r.Context(), action); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"action": string(action)})
}

func (h *handlers) expectSpeech(w http.ResponseWriter, r *http.Request) {
	// The wait outlives the request.
	h.ctrl.ExpectSpeech(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, h.ctrl.Status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func writeServiceUnavailable(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("event", "http.request").
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("handled request")
		})
	}
}
