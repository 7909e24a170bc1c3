package api

import "net/http"

// handleMaintenanceStatus returns database size and schedule information.
// GET /api/v1/maintenance/status
func (r *Router) handleMaintenanceStatus(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusServiceUnavailable, "maintenance not configured")
		return
	}

	st, err := r.maintenance.Status(req.Context())
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleMaintenanceOptimize runs PRAGMA optimize and a WAL checkpoint.
// POST /api/v1/maintenance/optimize
func (r *Router) handleMaintenanceOptimize(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusServiceUnavailable, "maintenance not configured")
		return
	}

	if err := r.maintenance.Optimize(req.Context()); err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMaintenanceVacuum rebuilds the database file.
// POST /api/v1/maintenance/vacuum
func (r *Router) handleMaintenanceVacuum(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusServiceUnavailable, "maintenance not configured")
		return
	}

	if err := r.maintenance.Vacuum(req.Context()); err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
