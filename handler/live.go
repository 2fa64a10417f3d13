package handler

import (
	"fmt"
	"net/http"

	"github.com/stevemurr/site-content-server/content"
	"github.com/stevemurr/site-content-server/live"
)

// galleryLive streams the gallery as server-sent events: once on connect and
// again whenever its content changes, by poll or by change event.
func (h *Handler) galleryLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	// Only the latest gallery matters to a slow client.
	updates := make(chan content.Gallery, 1)
	deliver := func(g content.Gallery) {
		select {
		case <-updates:
		default:
		}
		updates <- g
	}
	refresher := live.New(
		h.content.Gallery,
		func(g content.Gallery) uint64 { return content.VersionOf(g) },
		deliver,
		live.Every(h.poll),
		live.On(h.content.Subscribe, func(c content.Change) bool { return c.Kind == content.KindGallery }),
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	if err := refresher.Start(ctx); err != nil {
		return
	}
	defer refresher.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case g := <-updates:
			data, err := content.Encode(g)
			if err != nil {
				h.log.Error("Could not encode gallery", "err", err)
				return
			}
			fmt.Fprintf(w, "event: gallery\nid: %016x\ndata: %s\n\n", content.VersionOf(g), data)
			flusher.Flush()
		}
	}
}
