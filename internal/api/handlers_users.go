package api

import (
	"encoding/json"
	"net/http"

	"github.com/sydlexius/millpond/internal/event"
	"github.com/sydlexius/millpond/internal/user"
)

// handleListUsers returns users filtered by hidden/disabled state.
// GET /api/v1/users?hidden=&disabled=
func (r *Router) handleListUsers(w http.ResponseWriter, req *http.Request) {
	filter := user.ListFilter{
		IsHidden:   boolQuery(req, "hidden"),
		IsDisabled: boolQuery(req, "disabled"),
	}

	users, err := r.users.List(req.Context(), filter)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handlePublicUsers returns the login-screen user list: accounts that are
// neither hidden nor disabled.
// GET /api/v1/users/public
func (r *Router) handlePublicUsers(w http.ResponseWriter, req *http.Request) {
	f := false
	users, err := r.users.List(req.Context(), user.ListFilter{IsHidden: &f, IsDisabled: &f})
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleGetUser returns a single user.
// GET /api/v1/users/{id}
func (r *Router) handleGetUser(w http.ResponseWriter, req *http.Request) {
	u, err := r.users.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleCreateUser creates an account.
// POST /api/v1/users
func (r *Router) handleCreateUser(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name          string             `json:"name"`
		Configuration user.Configuration `json:"configuration"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	u, err := r.users.Create(req.Context(), body.Name, body.Configuration)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	r.publish(event.UserCreated, map[string]any{"user_id": u.ID, "name": u.Name})
	writeJSON(w, http.StatusCreated, u)
}

// handleUpdateUser applies a rename and configuration change guarded by the
// account safety rules.
// PUT /api/v1/users/{id}
func (r *Router) handleUpdateUser(w http.ResponseWriter, req *http.Request) {
	var body user.UpdateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := r.users.Update(req.Context(), req.PathValue("id"), body)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleDeleteUser removes an account and its sessions.
// DELETE /api/v1/users/{id}
func (r *Router) handleDeleteUser(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.users.Delete(req.Context(), id); err != nil {
		r.writeDomainError(w, err)
		return
	}
	r.publish(event.UserDeleted, map[string]any{"user_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// handleAuthenticateUser verifies a password for a known user id and mints a
// session. Unknown ids are NotFound, bad passwords Unauthorized.
// POST /api/v1/users/{id}/authenticate
func (r *Router) handleAuthenticateUser(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Password string `json:"password"` //nolint:gosec // G117: not a hardcoded secret, this is a request field
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := r.authService.Authenticate(req.Context(), req.PathValue("id"), body.Password)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAuthenticateByName resolves the first case-insensitive name match and
// verifies the password against it.
// POST /api/v1/users/{name}/authenticate-by-name
func (r *Router) handleAuthenticateByName(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Password string `json:"password"` //nolint:gosec // G117: not a hardcoded secret, this is a request field
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := r.authService.AuthenticateByName(req.Context(), req.PathValue("name"), body.Password)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleUserPassword changes a password. With reset=true the current password
// is not required (administrative reset); otherwise the caller must supply it.
// POST /api/v1/users/{id}/password
func (r *Router) handleUserPassword(w http.ResponseWriter, req *http.Request) {
	var body struct {
		CurrentPassword string `json:"current_password"` //nolint:gosec // G117: request field
		NewPassword     string `json:"new_password"`     //nolint:gosec // G117: request field
		Reset           bool   `json:"reset"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := req.PathValue("id")
	var err error
	if body.Reset {
		err = r.authService.ResetPassword(req.Context(), id, body.NewPassword)
	} else {
		err = r.authService.ChangePassword(req.Context(), id, body.CurrentPassword, body.NewPassword)
	}
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
