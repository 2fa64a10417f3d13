package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stevemurr/site-content-server/images"
)

// multipartSlack covers form boundaries and headers around the file.
const multipartSlack = 1 << 20

func (h *Handler) imagesReady(w http.ResponseWriter, r *http.Request) bool {
	if h.images == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Image uploads are not configured")
		return false
	}
	return true
}

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	if !h.imagesReady(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, images.MaxUploadBytes+multipartSlack)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, http.StatusRequestEntityTooLarge, images.ErrTooLarge.Error())
			return
		}
		writeError(w, r, http.StatusBadRequest, "Expected a multipart \"file\" field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, images.MaxUploadBytes+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.images.Ingest(r.Context(), images.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	switch {
	case errors.Is(err, images.ErrTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, images.ErrNotImage):
		writeError(w, r, http.StatusUnsupportedMediaType, err.Error())
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, r, http.StatusCreated, res)
	}
}

type imageRef struct {
	Ref string `json:"ref"`
}

func (h *Handler) deleteImage(w http.ResponseWriter, r *http.Request) {
	if !h.imagesReady(w, r) {
		return
	}
	var body imageRef
	if err := readJSON(r, &body); err != nil || body.Ref == "" {
		writeError(w, r, http.StatusBadRequest, "Expected {\"ref\": ...}")
		return
	}
	removed, err := h.images.Cleanup(r.Context(), body.Ref)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"removed": removed})
}

// sweepImages drops stored images that no content record references.
func (h *Handler) sweepImages(w http.ResponseWriter, r *http.Request) {
	if !h.imagesReady(w, r) {
		return
	}
	removed, err := h.images.Sweep(r.Context(), h.content.ImagesInUse())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) serveBlob(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		writeError(w, r, http.StatusNotFound, "Not found")
		return
	}
	data, contentType, err := h.images.OpenBlob(r.Context(), images.MemoryBlobPrefix+chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "Not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
