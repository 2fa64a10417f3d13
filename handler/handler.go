// Package handler provides the HTTP API of the content server.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/stevemurr/site-content-server/auth"
	"github.com/stevemurr/site-content-server/content"
	"github.com/stevemurr/site-content-server/images"
	"github.com/stevemurr/site-content-server/notify"
	"github.com/stevemurr/site-content-server/payment"
)

const serviceName = "Site Content Server"

// Dependencies are the collaborators behind the routes. Content and Auth are
// required; routes whose collaborator is nil answer 503.
type Dependencies struct {
	Content  *content.Store
	Auth     *auth.Service
	Images   *images.Ingester
	Notify   *notify.Service
	Payments payment.Gateway

	AllowedOrigins []string
	// GalleryPoll is the live gallery re-read interval. Defaults to
	// content.GalleryPollInterval.
	GalleryPoll time.Duration
	Log         *slog.Logger
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	content  *content.Store
	auth     *auth.Service
	images   *images.Ingester
	notify   *notify.Service
	payments payment.Gateway
	poll     time.Duration
	log      *slog.Logger

	router chi.Router
}

// New creates a Handler and wires up all routes.
func New(d Dependencies) *Handler {
	h := &Handler{
		content:  d.Content,
		auth:     d.Auth,
		images:   d.Images,
		notify:   d.Notify,
		payments: d.Payments,
		poll:     d.GalleryPoll,
		log:      d.Log,
	}
	if h.poll <= 0 {
		h.poll = content.GalleryPollInterval
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h.routes(origins)
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes(origins []string) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(origins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Health / status
	r.Get("/", h.storefront)
	r.Get("/health", h.health)
	r.Get("/blobs/{id}", h.serveBlob)

	admin := func(r chi.Router) {
		r.Use(jwtauth.Verifier(h.auth.TokenAuth()))
		r.Use(h.requireAdmin)
	}
	r.Group(func(r chi.Router) {
		admin(r)
		r.Get("/admin", h.adminView)
	})

	r.Route("/api", func(r chi.Router) {
		// --- Public content ---
		r.Get("/content", h.listContent)
		r.Get("/content/gallery/live", h.galleryLive)
		r.Get("/content/{kind}", h.getContent)

		// --- Forms and payments ---
		r.Post("/orders", h.submitOrder)
		r.Post("/bookings", h.submitBooking)
		r.Get("/payments/{id}", h.paymentStatus)

		// --- Session ---
		r.Post("/admin/login", h.login)
		r.Get("/admin/session", h.session)

		// --- Admin writes ---
		r.Group(func(r chi.Router) {
			admin(r)
			r.Post("/admin/logout", h.logout)
			r.Put("/admin/content/{kind}", h.putContent)
			r.Delete("/admin/content/{kind}", h.resetContent)
			r.Post("/admin/reset", h.resetAll)
			r.Post("/admin/images", h.uploadImage)
			r.Delete("/admin/images", h.deleteImage)
			r.Post("/admin/images/sweep", h.sweepImages)
			r.Post("/admin/payments/{id}/cancel", h.cancelPayment)
		})
	})
	h.router = r
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"detail": msg})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return render.DecodeJSON(r.Body, v)
}

func readJSONBytes(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("Request handled",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// requireAdmin rejects requests without a valid admin token for the current
// session. The verifier has already checked signature and expiry.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			writeError(w, r, http.StatusUnauthorized, "Admin login required")
			return
		}
		if role, _ := claims["role"].(string); role != auth.RoleAdmin {
			writeError(w, r, http.StatusForbidden, "Admin role required")
			return
		}
		if sid, _ := claims["jti"].(string); !h.auth.Active(sid) {
			writeError(w, r, http.StatusUnauthorized, "Admin session has ended")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---------- status endpoints ----------

func (h *Handler) storefront(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"content": h.content.All(),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) adminView(w http.ResponseWriter, r *http.Request) {
	overridden, err := h.content.Overridden()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if overridden == nil {
		overridden = []content.Kind{}
	}
	view := map[string]any{
		"content":       h.content.All(),
		"overridden":    overridden,
		"authenticated": h.auth.IsAuthenticated(),
	}
	if h.images != nil {
		stored, err := h.images.Stored()
		if err != nil {
			h.log.Warn("Could not count stored images", "err", err)
		}
		view["images"] = map[string]any{"mode": h.images.Mode(), "stored": stored}
	}
	writeJSON(w, r, http.StatusOK, view)
}
