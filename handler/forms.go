package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stevemurr/site-content-server/notify"
	"github.com/stevemurr/site-content-server/payment"
	"github.com/stevemurr/site-content-server/schema"
)

const maxFormBytes = 64 << 10

type orderForm struct {
	Name    string      `json:"name"`
	Email   string      `json:"email"`
	Phone   string      `json:"phone"`
	Details string      `json:"order"`
	Pay     bool        `json:"pay"`
	Items   []orderLine `json:"items"`
}

// orderLine names a menu item. Its price always comes from the menu.
type orderLine struct {
	Category string `json:"category"`
	ID       int    `json:"id"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

type bookingForm struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	People          string `json:"people"`
	SpecialRequests string `json:"specialRequests"`
	PayDeposit      bool   `json:"payDeposit"`
}

// submission is the response to an order or booking.
type submission struct {
	ID      string            `json:"id"`
	Email   notify.Result     `json:"email"`
	Payment *payment.Response `json:"payment,omitempty"`
}

// readForm validates the body against s before decoding it into v.
func readForm(w http.ResponseWriter, r *http.Request, s map[string]any, v any) bool {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormBytes))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "Form too large")
		return false
	}
	if _, err := schema.ValidateJSON(s, raw); err != nil {
		var fe *schema.FieldError
		if errors.As(err, &fe) {
			writeJSON(w, r, http.StatusUnprocessableEntity, map[string]string{"detail": fe.Message, "path": fe.Path})
			return false
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	if err := readJSONBytes(raw, v); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) formsReady(w http.ResponseWriter, r *http.Request) bool {
	if h.notify == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Form submissions are not configured")
		return false
	}
	return true
}

// pay initiates a payment. A declined payment is written as 402 and stops
// the submission.
func (h *Handler) pay(w http.ResponseWriter, r *http.Request, req payment.Request) (*payment.Response, bool) {
	if h.payments == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Payments are not configured")
		return nil, false
	}
	res, err := h.payments.Initiate(r.Context(), req)
	if err != nil {
		h.log.Error("Payment initiation failed", "order", req.OrderID, "err", err)
		writeError(w, r, http.StatusBadGateway, "Payment provider unavailable")
		return nil, false
	}
	if !res.Success {
		writeJSON(w, r, http.StatusPaymentRequired, map[string]any{"detail": res.Error, "payment": res})
		return nil, false
	}
	return &res, true
}

// priceLines resolves each line against the current menu. It writes 422 and
// returns false for a line the menu does not have.
func (h *Handler) priceLines(w http.ResponseWriter, r *http.Request, lines []orderLine) ([]payment.Item, bool) {
	menu := h.content.Menu()
	items := make([]payment.Item, 0, len(lines))
	for i, l := range lines {
		it, ok := menu.Find(l.Category, l.ID)
		if !ok {
			writeJSON(w, r, http.StatusUnprocessableEntity, map[string]string{
				"detail": fmt.Sprintf("no menu item %d in %q", l.ID, l.Category),
				"path":   fmt.Sprintf("$.items[%d]", i),
			})
			return nil, false
		}
		items = append(items, payment.Item{
			ID:       l.Category + "/" + strconv.Itoa(it.ID),
			Name:     it.Name,
			Price:    it.Price,
			Quantity: l.Quantity,
			Notes:    l.Notes,
		})
	}
	return items, true
}

// emailFailed answers a submission whose email could not be sent. A payment
// already taken for it is cancelled and reported back either way.
func (h *Handler) emailFailed(w http.ResponseWriter, r *http.Request, out submission, msg string) {
	if out.Payment == nil {
		writeError(w, r, http.StatusBadGateway, msg)
		return
	}
	ctx := context.WithoutCancel(r.Context())
	cancelled, err := h.payments.Cancel(ctx, out.Payment.TransactionID)
	if err != nil {
		h.log.Error("Could not cancel payment after failed email",
			"id", out.ID, "transaction", out.Payment.TransactionID, "err", err)
	}
	writeJSON(w, r, http.StatusBadGateway, map[string]any{
		"detail":    msg,
		"id":        out.ID,
		"payment":   out.Payment,
		"cancelled": cancelled,
	})
}

// submitOrder takes payment first when asked to, then emails the order.
func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	if !h.formsReady(w, r) {
		return
	}
	var f orderForm
	if !readForm(w, r, schema.OrderForm(), &f) {
		return
	}
	out := submission{ID: "order_" + uuid.NewString()}
	customer := payment.Customer{Name: f.Name, Email: f.Email, Phone: f.Phone}

	if f.Pay {
		items, ok := h.priceLines(w, r, f.Items)
		if !ok {
			return
		}
		req, err := payment.OrderRequest(out.ID, items, customer)
		if err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if out.Payment, ok = h.pay(w, r, req); !ok {
			return
		}
	}

	res, err := h.notify.SubmitOrder(r.Context(), notify.Order{
		Name: f.Name, Email: f.Email, Phone: f.Phone, Details: f.Details,
	})
	if err != nil {
		h.log.Error("Order email failed", "order", out.ID, "err", err)
		h.emailFailed(w, r, out, "Could not send order email")
		return
	}
	out.Email = res
	writeJSON(w, r, http.StatusCreated, out)
}

func (h *Handler) submitBooking(w http.ResponseWriter, r *http.Request) {
	if !h.formsReady(w, r) {
		return
	}
	var f bookingForm
	if !readForm(w, r, schema.BookingForm(), &f) {
		return
	}
	date, err := time.Parse(time.DateOnly, f.Date)
	if err != nil {
		writeJSON(w, r, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid date", "path": "$.date"})
		return
	}
	out := submission{ID: "booking_" + uuid.NewString()}

	if f.PayDeposit {
		req := payment.DepositRequest(out.ID, payment.Customer{Name: f.Name, Email: f.Email, Phone: f.Phone})
		var ok bool
		if out.Payment, ok = h.pay(w, r, req); !ok {
			return
		}
	}

	res, err := h.notify.SubmitBooking(r.Context(), notify.Booking{
		Name:            f.Name,
		Email:           f.Email,
		Phone:           f.Phone,
		Date:            date,
		Time:            f.Time,
		People:          f.People,
		SpecialRequests: f.SpecialRequests,
	})
	if err != nil {
		h.log.Error("Booking email failed", "booking", out.ID, "err", err)
		h.emailFailed(w, r, out, "Could not send booking email")
		return
	}
	out.Email = res
	writeJSON(w, r, http.StatusCreated, out)
}

// ---------- payments ----------

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Payments are not configured")
		return
	}
	st, err := h.payments.Status(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, payment.ErrUnknownTransaction):
		writeError(w, r, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, r, http.StatusOK, st)
	}
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Payments are not configured")
		return
	}
	ok, err := h.payments.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"cancelled": ok})
}
