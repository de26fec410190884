package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mook/componenthost/components"
	"github.com/mook/componenthost/registry"
	"github.com/mook/componenthost/settings"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Maximum size of submitted component code.
const maxCodeSize = 1 << 20

// Manager is the registry as seen by the API.
type Manager interface {
	List() []*settings.Record
	Active() *components.ActiveList
	Install(ctx context.Context, code string) (*registry.Result, error)
	Uninstall(ctx context.Context, nameOrDisplayName string) (*registry.Result, error)
	Toggle(ctx context.Context, nameOrDisplayName string) (string, error)
	Reload(ctx context.Context) error
}

type handler struct {
	manager Manager
	styles  io.WriterTo
}

// NewHandler returns the HTTP handler of the management API.  The styles
// argument may be nil.
func NewHandler(manager Manager, styles io.WriterTo) http.Handler {
	h := &handler{manager: manager, styles: styles}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Route("/components", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.install)
		r.Get("/active", h.active)
		r.Delete("/{name}", h.uninstall)
		r.Post("/{name}/toggle", h.toggle)
	})
	r.Post("/reload", h.reload)
	r.Get("/styles.css", h.stylesheet)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type installedComponent struct {
	Metadata components.UserMetadata     `json:"metadata"`
	Settings *settings.ComponentSettings `json:"settings"`
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	records := h.manager.List()
	result := make([]installedComponent, 0, len(records))
	for _, record := range records {
		result = append(result, installedComponent{Metadata: record.Metadata, Settings: record.Settings})
	}
	writeJSON(r.Context(), w, http.StatusOK, result)
}

func (h *handler) active(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, h.manager.Active().List())
}

func (h *handler) install(w http.ResponseWriter, r *http.Request) {
	code, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCodeSize))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(r.Context(), w, status, err)
		return
	}
	result, err := h.manager.Install(r.Context(), string(code))
	h.respond(w, r, result, err)
}

func (h *handler) uninstall(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.Uninstall(r.Context(), chi.URLParam(r, "name"))
	h.respond(w, r, result, err)
}

func (h *handler) toggle(w http.ResponseWriter, r *http.Request) {
	message, err := h.manager.Toggle(r.Context(), chi.URLParam(r, "name"))
	h.respond(w, r, map[string]string{"message": message}, err)
}

func (h *handler) reload(w http.ResponseWriter, r *http.Request) {
	err := h.manager.Reload(r.Context())
	if err != nil {
		// Components that failed to load are reported but do not fail the request.
		writeJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "reloaded with errors", "error": err.Error()})
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "reloaded"})
}

func (h *handler) stylesheet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	if h.styles == nil {
		return
	}
	if _, err := h.styles.WriteTo(w); err != nil {
		slog.ErrorContext(r.Context(), "failed to write stylesheet", "error", err)
	}
}

func (h *handler) respond(w http.ResponseWriter, r *http.Request, result any, err error) {
	if err != nil {
		writeError(r.Context(), w, statusFor(err), err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrNameCollision):
		return http.StatusConflict
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "management API request failed", "error", err)
	}
	writeJSON(ctx, w, status, map[string]string{"error": err.Error()})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.DebugContext(ctx, "failed to write response", "error", err)
	}
}
