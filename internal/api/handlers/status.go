package handlers

import (
	"net/http"
	"time"

	"galleria/internal/gallery"
	"galleria/internal/scan"
	"galleria/internal/scheduler"
	"galleria/internal/store"
	"galleria/internal/thumb"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Store       *store.Store
	Coordinator *scan.Coordinator
	Provider    *gallery.Provider
	Cache       *thumb.Cache
	Sched       *scheduler.Scheduler
	Version     string
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess := h.Coordinator.Session()

	total, err := h.Store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	resp := map[string]interface{}{
		"version":        h.Version,
		"indexed_files":  total,
		"gallery_rows":   h.Provider.RowCount(),
		"thumb_entries":  h.Cache.Len(),
		"scan":           sessionJSON(sess),
		"next_rescan_at": nil,
	}
	if next := h.Sched.NextRunAt(); next != nil {
		resp["next_rescan_at"] = next.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}
