package handler

import (
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/skapxd/image-optimization-service/internal/journal"
)

var filenameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z]{2,4}$`)

// Download serves an optimized artifact: the local artifact directory is
// checked first, then the blob store.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !filenameRe.MatchString(filename) {
		writeJSONError(w, "invalid filename", http.StatusBadRequest)
		return
	}

	local := filepath.Join(h.cfg.Storage.ArtifactDir, filename)
	if data, err := os.ReadFile(local); err == nil {
		w.Header().Set("Content-Type", mimetype.Detect(data).String())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	if h.artifacts == nil {
		writeJSONError(w, "file not found", http.StatusNotFound)
		return
	}

	data, contentType, err := h.artifacts.Download(r.Context(), path.Join("optimized", filename))
	if err != nil {
		writeJSONError(w, "file not found", http.StatusNotFound)
		return
	}
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Status reports the journaled lifecycle state of an optimization. Only
// available when the durability extension is configured.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := h.journal.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			writeJSONError(w, "no status recorded for this optimization", http.StatusNotFound)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}
