package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sydlexius/millpond/internal/auth"
	"github.com/sydlexius/millpond/internal/event"
	"github.com/sydlexius/millpond/internal/item"
	"github.com/sydlexius/millpond/internal/user"
	"github.com/sydlexius/millpond/internal/version"
)

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.Commit,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain sentinel errors to HTTP statuses.
func (r *Router) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, item.ErrNotFound), errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, item.ErrItemOffline),
		errors.Is(err, user.ErrLastAdmin),
		errors.Is(err, user.ErrAdminDisabled),
		errors.Is(err, user.ErrLastEnabled),
		errors.Is(err, user.ErrNameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, item.ErrUnsupportedDelete):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		r.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// publish emits an event when a bus is configured.
func (r *Router) publish(t event.Type, data map[string]any) {
	if r.eventBus == nil {
		return
	}
	r.eventBus.Publish(event.Event{Type: t, Data: data})
}

// intQuery extracts an integer query parameter with a default value.
func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// boolQuery extracts an optional boolean query parameter. Returns nil when
// the parameter is absent or unparsable.
func boolQuery(r *http.Request, key string) *bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
