package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"galleria/internal/scan"
)

// ScansHandler handles scan-session API endpoints.
type ScansHandler struct {
	DB          *sql.DB
	Coordinator *scan.Coordinator
	Roots       func() []string
}

// Create handles POST /api/scans — triggers a manual scan. An optional
// "root" query parameter restricts the scan to one directory; by default
// the first configured media root is walked.
func (h *ScansHandler) Create(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("root")
	if root == "" {
		roots := h.Roots()
		if len(roots) == 0 {
			writeError(w, http.StatusBadRequest, "NO_MEDIA_ROOTS", "No media roots configured")
			return
		}
		root = roots[0]
	}

	sess, err := h.Coordinator.Start(context.Background(), root, "manual")
	if err != nil {
		if errors.Is(err, scan.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "SCAN_ALREADY_RUNNING", "A scan is already in progress")
			return
		}
		if sess.Status == scan.StatusFailed {
			writeJSON(w, http.StatusUnprocessableEntity, sessionJSON(sess))
			return
		}
		slog.Error("scans: start", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start scan")
		return
	}

	writeJSON(w, http.StatusAccepted, sessionJSON(sess))
}

// Cancel handles DELETE /api/scans/current.
func (h *ScansHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Coordinator.Cancel()
	if err != nil {
		if errors.Is(err, scan.ErrNoActiveScan) {
			writeError(w, http.StatusNotFound, "NO_ACTIVE_SCAN", "No scan is currently running")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(sess))
}

// List handles GET /api/scans — scan history, newest first.
func (h *ScansHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT id, root_path, started_at, finished_at, status, triggered_by,
		       files_seen, files_inserted, errors, duration_seconds
		FROM scan_history
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		slog.Error("scans list: query", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	defer rows.Close()

	var items []scanItem
	for rows.Next() {
		it, err := scanItemFromRow(rows.Scan)
		if err != nil {
			slog.Error("scans list: scan row", "error", err)
			continue
		}
		items = append(items, it)
	}
	if items == nil {
		items = []scanItem{}
	}

	var total int
	h.DB.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM scan_history`).Scan(&total) //nolint:errcheck

	writeJSON(w, http.StatusOK, ListResponse[scanItem]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /api/scans/:id — one history row plus its error list.
func (h *ScansHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid scan ID")
		return
	}

	row := h.DB.QueryRowContext(r.Context(), `
		SELECT id, root_path, started_at, finished_at, status, triggered_by,
		       files_seen, files_inserted, errors, duration_seconds
		FROM scan_history WHERE id = ?`, id)

	it, err := scanItemFromRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Scan not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	type errItem struct {
		Path       string `json:"path"`
		Stage      string `json:"stage"`
		Error      string `json:"error"`
		OccurredAt string `json:"occurred_at"`
	}
	detail := struct {
		scanItem
		ErrorList []errItem `json:"error_list"`
	}{scanItem: it, ErrorList: []errItem{}}

	errRows, err := h.DB.QueryContext(r.Context(), `
		SELECT path, stage, error, occurred_at
		FROM scan_errors WHERE scan_id = ?
		ORDER BY occurred_at, id`, id)
	if err == nil {
		defer errRows.Close()
		for errRows.Next() {
			var e errItem
			var occAt int64
			if errRows.Scan(&e.Path, &e.Stage, &e.Error, &occAt) == nil {
				e.OccurredAt = time.Unix(occAt, 0).UTC().Format(time.RFC3339)
				detail.ErrorList = append(detail.ErrorList, e)
			}
		}
	}

	writeJSON(w, http.StatusOK, detail)
}

type scanItem struct {
	ID              int64   `json:"id"`
	RootPath        string  `json:"root_path"`
	StartedAt       string  `json:"started_at"`
	FinishedAt      *string `json:"finished_at"`
	Status          string  `json:"status"`
	TriggeredBy     string  `json:"triggered_by"`
	FilesSeen       int64   `json:"files_seen"`
	FilesInserted   int64   `json:"files_inserted"`
	Errors          int64   `json:"errors"`
	DurationSeconds *int64  `json:"duration_seconds"`
}

func scanItemFromRow(scanFn func(dest ...any) error) (scanItem, error) {
	var it scanItem
	var startedAt int64
	var finishedAt, durSecs sql.NullInt64
	if err := scanFn(
		&it.ID, &it.RootPath, &startedAt, &finishedAt, &it.Status,
		&it.TriggeredBy, &it.FilesSeen, &it.FilesInserted, &it.Errors, &durSecs,
	); err != nil {
		return scanItem{}, err
	}
	it.StartedAt = time.Unix(startedAt, 0).UTC().Format(time.RFC3339)
	if finishedAt.Valid {
		s := time.Unix(finishedAt.Int64, 0).UTC().Format(time.RFC3339)
		it.FinishedAt = &s
	}
	if durSecs.Valid {
		it.DurationSeconds = &durSecs.Int64
	}
	return it, nil
}

func sessionJSON(s scan.Session) map[string]interface{} {
	m := map[string]interface{}{
		"id":             s.ID,
		"root_path":      s.RootPath,
		"status":         string(s.Status),
		"started_at":     s.StartedAt.UTC().Format(time.RFC3339),
		"triggered_by":   s.TriggeredBy,
		"files_seen":     s.FilesSeen,
		"files_inserted": s.FilesInserted,
		"errors":         s.Errors,
	}
	if s.CurrentTarget != "" {
		m["current_target"] = s.CurrentTarget
	}
	return m
}
