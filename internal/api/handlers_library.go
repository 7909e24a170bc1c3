package api

import (
	"context"
	"net/http"
)

// handleLibraryRefresh triggers a full library scan.
// POST /api/v1/library/refresh
func (r *Router) handleLibraryRefresh(w http.ResponseWriter, req *http.Request) {
	if r.scannerService == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}

	// The scan outlives the request; net/http cancels the request context
	// as soon as the 202 goes out.
	result, err := r.scannerService.Run(context.WithoutCancel(req.Context()))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// handleScanStatus returns the current or most recent scan status.
// GET /api/v1/library/scan-status
func (r *Router) handleScanStatus(w http.ResponseWriter, req *http.Request) {
	if r.scannerService == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}

	status := r.scannerService.Status()
	if status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}

	writeJSON(w, http.StatusOK, status)
}
