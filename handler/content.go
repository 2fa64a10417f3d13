package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stevemurr/site-content-server/content"
	"github.com/stevemurr/site-content-server/store"
)

// maxRecordBytes bounds a content body. Inline images make records large.
const maxRecordBytes = 16 << 20

func etag(r content.Record) string {
	return fmt.Sprintf(`"%016x"`, content.VersionOf(r))
}

func kindParam(w http.ResponseWriter, r *http.Request) (content.Kind, bool) {
	kind, err := content.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

func (h *Handler) listContent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.content.All())
}

func (h *Handler) getContent(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	rec := h.content.Get(kind)
	tag := etag(rec)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// putContent replaces the override of one kind. Last write wins.
func (h *Handler) putContent(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordBytes))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "Content too large")
		return
	}
	rec, err := content.Decode(kind, raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if err := h.content.Update(rec); err != nil {
		if errors.Is(err, store.ErrQuotaExceeded) {
			writeError(w, r, http.StatusInsufficientStorage, "Storage quota exceeded")
			return
		}
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("ETag", etag(rec))
	writeJSON(w, r, http.StatusOK, rec)
}

func (h *Handler) resetContent(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	if err := h.content.Reset(kind); err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, h.content.Get(kind))
}

func (h *Handler) resetAll(w http.ResponseWriter, r *http.Request) {
	if err := h.content.ResetAll(); err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "reset"})
}
