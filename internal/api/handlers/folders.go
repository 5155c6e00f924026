package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"galleria/internal/gallery"
	"galleria/internal/store"
)

// FoldersHandler lists the distinct directories holding indexed media and
// lets the UI forget one (remove its records without touching the disk).
type FoldersHandler struct {
	Store    *store.Store
	Provider *gallery.Provider
}

// List handles GET /api/folders.
func (h *FoldersHandler) List(w http.ResponseWriter, r *http.Request) {
	folders, err := h.Store.Folders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if folders == nil {
		folders = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"folders": folders})
}

// Remove handles DELETE /api/folders?path= — drops every record under the
// directory and refreshes the gallery snapshot. Files on disk are untouched.
func (h *FoldersHandler) Remove(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("path")
	if dir == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PATH", "path query parameter is required")
		return
	}

	removed, err := h.Store.RemoveFolder(r.Context(), dir)
	if err != nil {
		slog.Error("folders remove", "path", dir, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	if err := h.Provider.Refresh(context.Background()); err != nil {
		slog.Warn("folders remove: gallery refresh", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}
