package api

import "net/http"

// handleListItems returns a page of library items.
// GET /api/v1/items?start_index=&limit=
func (r *Router) handleListItems(w http.ResponseWriter, req *http.Request) {
	startIndex := intQuery(req, "start_index", 0)
	limit := intQuery(req, "limit", 100)

	items, err := r.items.List(req.Context(), startIndex, limit)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	total, err := r.items.Count(req.Context())
	if err != nil {
		r.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":              items,
		"total_record_count": total,
		"start_index":        startIndex,
	})
}

// handleGetItem returns a single item.
// GET /api/v1/items/{id}
func (r *Router) handleGetItem(w http.ResponseWriter, req *http.Request) {
	it, err := r.items.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// handleDeleteItem runs the deletion protocol against an item.
// DELETE /api/v1/items/{id}
func (r *Router) handleDeleteItem(w http.ResponseWriter, req *http.Request) {
	if err := r.lifecycle.Delete(req.Context(), req.PathValue("id")); err != nil {
		r.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleItemCounts returns per-kind item counts, optionally scoped to a subtree.
// GET /api/v1/items/counts?root_id=
func (r *Router) handleItemCounts(w http.ResponseWriter, req *http.Request) {
	counts, err := r.items.Counts(req.Context(), req.URL.Query().Get("root_id"))
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleItemReviews returns critic reviews for an item with paging applied
// after the total count.
// GET /api/v1/items/{id}/reviews?start_index=&limit=
func (r *Router) handleItemReviews(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if _, err := r.items.GetByID(req.Context(), id); err != nil {
		r.writeDomainError(w, err)
		return
	}

	result, err := r.items.CriticReviews(req.Context(), id,
		intQuery(req, "start_index", 0), intQuery(req, "limit", 0))
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// inheritParam reads the inherit query flag, defaulting to true.
func inheritParam(req *http.Request) bool {
	if b := boolQuery(req, "inherit"); b != nil {
		return *b
	}
	return true
}

// handleThemeSongs returns the theme songs owned by an item or its nearest
// ancestor.
// GET /api/v1/items/{id}/theme-songs?inherit=
func (r *Router) handleThemeSongs(w http.ResponseWriter, req *http.Request) {
	result, err := r.themes.ThemeSongs(req.Context(), req.PathValue("id"), inheritParam(req))
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleThemeVideos returns the theme videos owned by an item or its nearest
// ancestor.
// GET /api/v1/items/{id}/theme-videos?inherit=
func (r *Router) handleThemeVideos(w http.ResponseWriter, req *http.Request) {
	result, err := r.themes.ThemeVideos(req.Context(), req.PathValue("id"), inheritParam(req))
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleThemeMedia returns theme songs and theme videos resolved together.
// GET /api/v1/items/{id}/theme-media?inherit=
func (r *Router) handleThemeMedia(w http.ResponseWriter, req *http.Request) {
	result, err := r.themes.ThemeMedia(req.Context(), req.PathValue("id"), inheritParam(req))
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
