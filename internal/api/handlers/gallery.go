package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"galleria/internal/gallery"
	"galleria/internal/thumb"
)

// GalleryHandler serves the windowed row view a virtualized UI scrolls over.
type GalleryHandler struct {
	Provider *gallery.Provider
}

// List handles GET /api/gallery — one page of rows plus the total count, so
// the view can size its scrollbar without loading everything.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	type rowItem struct {
		Index     int    `json:"index"`
		ID        int64  `json:"id"`
		Path      string `json:"path"`
		Filename  string `json:"filename"`
		Extension string `json:"extension"`
		FileType  string `json:"file_type"`
		FileSize  int64  `json:"file_size"`
	}

	rows := h.Provider.Rows(offset, limit)
	items := make([]rowItem, 0, len(rows))
	for i, rec := range rows {
		items = append(items, rowItem{
			Index:     offset + i,
			ID:        rec.ID,
			Path:      rec.Path,
			Filename:  rec.Filename,
			Extension: rec.Extension,
			FileType:  string(rec.FileType),
			FileSize:  rec.FileSize,
		})
	}

	writeJSON(w, http.StatusOK, ListResponse[rowItem]{
		Items:  items,
		Total:  h.Provider.RowCount(),
		Limit:  limit,
		Offset: offset,
	})
}

// Refresh handles POST /api/gallery/refresh — re-reads the store snapshot.
func (h *GalleryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Provider.Refresh(r.Context()); err != nil {
		slog.Error("gallery refresh", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"row_count": h.Provider.RowCount(),
	})
}

// Thumbnail handles GET /api/gallery/{index}/thumbnail. The response is
// always a JPEG: the real thumbnail on a cache hit, the generic video icon
// for videos, or a placeholder while a decode is pending / after it failed.
// X-Thumbnail-State tells a polling client whether to retry.
func (h *GalleryHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INDEX", "Invalid row index")
		return
	}

	data, state, err := h.Provider.ThumbnailFor(index)
	if err != nil {
		if errors.Is(err, gallery.ErrIndexOutOfRange) {
			writeError(w, http.StatusNotFound, "INDEX_OUT_OF_RANGE", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	switch state {
	case thumb.StateReady:
		w.Header().Set("X-Thumbnail-State", "ready")
		w.Header().Set("Cache-Control", "public, max-age=3600")
	case thumb.StatePending:
		w.Header().Set("X-Thumbnail-State", "pending")
		w.Header().Set("Cache-Control", "no-store")
	case thumb.StateFailed:
		w.Header().Set("X-Thumbnail-State", "failed")
		w.Header().Set("Cache-Control", "public, max-age=3600")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}
