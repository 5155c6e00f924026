package handlers

import (
	"encoding/json"
	"net/http"

	"galleria/internal/config"
)

// ConfigHandler exposes the runtime-editable parts of the configuration —
// today that is the classified extension sets.
type ConfigHandler struct {
	Cfg *config.Config
}

// Get handles GET /api/config.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	images, videos := h.Cfg.ExtensionSets()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"media_roots":      h.Cfg.MediaRoots,
		"exclude_paths":    h.Cfg.ExcludePaths,
		"image_extensions": images,
		"video_extensions": videos,
		"schedule":         h.Cfg.Schedule,
		"thumbnail":        h.Cfg.Thumbnail,
	})
}

// Update handles PATCH /api/config — add or remove one extension from a
// set. Changes apply to the next scan; already-indexed records keep their
// classification.
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action    string `json:"action"`     // "add" or "remove"
		MediaType string `json:"media_type"` // "image" or "video"
		Extension string `json:"extension"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}

	var ok bool
	switch req.Action {
	case "add":
		ok = h.Cfg.AddExtension(req.MediaType, req.Extension)
	case "remove":
		ok = h.Cfg.RemoveExtension(req.MediaType, req.Extension)
	default:
		writeError(w, http.StatusBadRequest, "INVALID_ACTION", "action must be \"add\" or \"remove\"")
		return
	}

	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "NO_CHANGE",
			"extension set unchanged (unknown media type, duplicate add, or missing remove)")
		return
	}

	images, videos := h.Cfg.ExtensionSets()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"image_extensions": images,
		"video_extensions": videos,
	})
}
