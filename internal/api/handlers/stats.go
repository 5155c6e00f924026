package handlers

import (
	"net/http"

	"galleria/internal/store"
)

// StatsHandler handles GET /api/stats — library totals per file type.
type StatsHandler struct {
	Store *store.Store
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if stats == nil {
		stats = []store.TypeStats{}
	}

	var files, bytes int64
	for _, st := range stats {
		files += st.Count
		bytes += st.TotalBytes
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_files": files,
		"total_bytes": bytes,
		"by_type":     stats,
	})
}
