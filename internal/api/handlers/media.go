package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"galleria/internal/media"
	"galleria/internal/store"
)

// MediaHandler serves per-file details and the original bytes.
type MediaHandler struct {
	Store *store.Store
}

// Info handles GET /api/media/{id}/info — the metadata-panel payload:
// the stored record plus, for images, EXIF details read on demand.
func (h *MediaHandler) Info(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}

	resp := struct {
		store.MediaRecord
		ContentType string           `json:"content_type"`
		Image       *media.ImageMeta `json:"image,omitempty"`
	}{
		MediaRecord: rec,
		ContentType: media.ContentType(rec.Path),
	}
	if rec.FileType == media.FileTypeImage {
		meta := media.ExtractImageMeta(rec.Path)
		resp.Image = &meta
	}

	writeJSON(w, http.StatusOK, resp)
}

// Raw handles GET /api/media/{id}/raw — streams the original file with the
// correct Content-Type, for the full-size viewer.
func (h *MediaHandler) Raw(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}

	f, err := os.Open(rec.Path)
	if err != nil {
		slog.Warn("media raw: open", "path", rec.Path, "error", err)
		writeError(w, http.StatusNotFound, "FILE_GONE", "File no longer exists on disk")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	w.Header().Set("Content-Type", media.ContentType(rec.Path))
	http.ServeContent(w, r, rec.Filename, info.ModTime(), f)
}

func (h *MediaHandler) lookup(w http.ResponseWriter, r *http.Request) (store.MediaRecord, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid media ID")
		return store.MediaRecord{}, false
	}

	rec, err := h.Store.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Media record not found")
		return store.MediaRecord{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return store.MediaRecord{}, false
	}
	return rec, true
}
