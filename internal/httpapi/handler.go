// Package httpapi exposes the admission and wave-progression REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/launchwave/launchwave/internal/app"
	"github.com/launchwave/launchwave/internal/metrics"
	"github.com/launchwave/launchwave/internal/middleware"
	"github.com/launchwave/launchwave/internal/services/admission"
	"github.com/launchwave/launchwave/internal/services/waves"
	"github.com/launchwave/launchwave/internal/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the admission REST API. The
// rate limiter guards the bulk-removal boundary; pass nil to disable.
func NewHandler(application *app.Application, limiter *middleware.RateLimiter) http.Handler {
	h := &handler{app: application}

	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware())
	if application.Log != nil {
		r.Use(middleware.LoggingMiddleware(application.Log))
	}

	r.HandleFunc("/signup", h.signup).Methods(http.MethodPost)
	r.HandleFunc("/waves/promote", h.promoteWave).Methods(http.MethodPost)

	removeHandler := http.Handler(http.HandlerFunc(h.removeFallback))
	if limiter != nil {
		removeHandler = limiter.Handler(removeHandler)
	}
	r.Handle("/waves/remove-fallback", removeHandler).Methods(http.MethodPost)

	r.HandleFunc("/waves/{number:[0-9]+}", h.waveStatus).Methods(http.MethodGet)
	r.HandleFunc("/signups/{email}", h.signupByEmail).Methods(http.MethodGet)
	r.HandleFunc("/pools", h.pools).Methods(http.MethodGet)
	r.HandleFunc("/audit", h.auditEntries).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email       string `json:"email"`
		IsCreator   bool   `json:"is_creator"`
		WantsTester bool   `json:"wants_tester"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.Admission.Admit(r.Context(), payload.Email, payload.IsCreator, payload.WantsTester)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":         result.Status,
		"wave":           result.Wave,
		"pool_badges":    result.PoolBadges,
		"tester_granted": result.TesterGranted,
	})
}

func (h *handler) promoteWave(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FromWave           int    `json:"from_wave"`
		Limit              int    `json:"limit"`
		ConfirmationPhrase string `json:"confirmation_phrase"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	promoted, err := h.app.Waves.Promote(r.Context(), actor(r), payload.FromWave, payload.Limit, payload.ConfirmationPhrase)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"promoted_count": promoted})
}

func (h *handler) removeFallback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Limit              int    `json:"limit"`
		ConfirmationPhrase string `json:"confirmation_phrase"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	deleted, err := h.app.Waves.RemoveFallback(r.Context(), actor(r), payload.Limit, payload.ConfirmationPhrase)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted_count": deleted})
}

func (h *handler) waveStatus(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(mux.Vars(r)["number"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := h.app.Waves.Status(r.Context(), number)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) signupByEmail(w http.ResponseWriter, r *http.Request) {
	su, err := h.app.Admission.GetByEmail(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, su)
}

func (h *handler) pools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.app.Admission.Pools(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, h.app.Audit.List(limit))
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor identifies the operator for audit purposes.
func actor(r *http.Request) string {
	if op := r.Header.Get("X-Operator"); op != "" {
		return op
	}
	return r.RemoteAddr
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admission.ErrInvalidEmail),
		errors.Is(err, waves.ErrConfirmationMismatch),
		errors.Is(err, waves.ErrInvalidLimit),
		errors.Is(err, waves.ErrInvalidWave):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, storage.ErrDuplicateSignup):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, waves.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
