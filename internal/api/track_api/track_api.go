package track_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/TrackGate/internal/models"
	"github.com/BearBump/TrackGate/internal/services/resolver"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type Resolver interface {
	Resolve(ctx context.Context, rawCode string) (models.TrackingResult, error)
}

type TrackAPI struct {
	svc Resolver
}

func New(svc Resolver) *TrackAPI {
	return &TrackAPI{svc: svc}
}

// Routes вешает трекинг-эндпоинты на роутер. Форма хостится отдельно,
// поэтому на /track разрешён CORS отовсюду.
func (a *TrackAPI) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(corsMiddleware)
		r.Get("/track", a.handleGet)
		r.Post("/track", a.handlePost)
		r.Options("/track", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
}

func (a *TrackAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("tracking")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing tracking code")
		return
	}
	a.resolve(w, r, code)
}

type postBody struct {
	CustomCode string `json:"customCode"`
}

func (a *TrackAPI) handlePost(w http.ResponseWriter, r *http.Request) {
	var body postBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.CustomCode == "" {
		writeError(w, http.StatusBadRequest, "missing tracking code")
		return
	}
	a.resolve(w, r, body.CustomCode)
}

func (a *TrackAPI) resolve(w http.ResponseWriter, r *http.Request, code string) {
	res, err := a.svc.Resolve(r.Context(), code)
	switch {
	case errors.Is(err, resolver.ErrEmptyCode):
		writeError(w, http.StatusBadRequest, "missing tracking code")
	case err != nil:
		var le *resolver.LookupError
		if errors.As(err, &le) {
			slog.Error("record lookup failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "error retrieving tracking information: "+le.Err.Error())
			return
		}
		slog.Error("tracking failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "error tracking package: "+err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
