package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/stevemurr/site-content-server/auth"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := readJSON(r, &c); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	token, err := h.auth.Login(r.Context(), c.Username, c.Password)
	var throttled *auth.ThrottleError
	switch {
	case errors.As(err, &throttled):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(throttled.Wait.Seconds()))))
		writeError(w, r, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "Invalid username or password")
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, r, http.StatusOK, map[string]any{"token": token, "authenticated": true})
	}
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(); err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"authenticated": false})
}

// session reports the stored flag. It never authorizes a write.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"authenticated": h.auth.IsAuthenticated()})
}
