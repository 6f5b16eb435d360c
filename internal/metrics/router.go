package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-edge/internal/link"
)

// Health is the /healthz response body.
type Health struct {
	Status  string `json:"status"`
	Link    string `json:"link,omitempty"`
	Session bool   `json:"session"`
}

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// Router returns the listener's routes: /metrics and /healthz.
func (r *Registry) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(recoveryMiddleware)

	mux.Method(http.MethodGet, "/metrics", r.Handler())
	mux.Get("/healthz", r.handleHealth)

	return mux
}

// Health reports link and session status from the bound sources. The node
// is healthy when the link is associated and the session is connected.
func (r *Registry) Health() Health {
	r.mu.RLock()
	src := r.src
	r.mu.RUnlock()

	h := Health{Status: HealthOK}
	if f := src.LinkState; f != nil {
		state := f()
		h.Link = state.String()
		if state != link.StateAssociated {
			h.Status = HealthDegraded
		}
	}
	if f := src.SessionConnected; f != nil {
		h.Session = f()
		if !h.Session {
			h.Status = HealthDegraded
		}
	}
	return h
}

func (r *Registry) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := r.Health()
	status := http.StatusOK
	if h.Status != HealthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	json.NewEncoder(w).Encode(v)
}

// recoveryMiddleware turns a handler panic into a 500 response.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "internal server error"})
			}
		}()
		next.ServeHTTP(w, req)
	})
}
