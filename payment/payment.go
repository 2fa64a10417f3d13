// Package payment is the client side of the restaurant's payment provider:
// order totals, the booking deposit and a gateway that initiates, checks
// and cancels transactions.
package payment

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const Currency = "GBP"

type Type string

const (
	TypeOrder          Type = "order"
	TypeBookingDeposit Type = "booking_deposit"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrEmptyOrder         = errors.New("order has no items")
)

type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Notes    string  `json:"notes,omitempty"`
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Request struct {
	OrderID  string                 `json:"orderId"`
	Amount   float64                `json:"amount"`
	Currency string                 `json:"currency"`
	Items    []Item                 `json:"items"`
	Customer Customer               `json:"customer"`
	Type     Type                   `json:"type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type Response struct {
	Success          bool   `json:"success"`
	TransactionID    string `json:"transactionId,omitempty"`
	PaymentURL       string `json:"paymentUrl,omitempty"`
	Error            string `json:"error,omitempty"`
	RequiresRedirect bool   `json:"requiresRedirect,omitempty"`
}

type StatusResponse struct {
	Status        Status  `json:"status"`
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	CompletedAt   string  `json:"completedAt,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Gateway is the payment provider's call contract.
type Gateway interface {
	Initiate(ctx context.Context, req Request) (Response, error)
	Status(ctx context.Context, txnID string) (StatusResponse, error)
	Cancel(ctx context.Context, txnID string) (bool, error)
}

// Deposit describes the booking deposit.
type Deposit struct {
	Enabled     bool            `json:"enabled"`
	Amount      decimal.Decimal `json:"amount"`
	Refundable  bool            `json:"refundable"`
	Description string          `json:"description"`
}

// BookingDeposit is taken per table booking.
var BookingDeposit = Deposit{
	Enabled:     true,
	Amount:      decimal.NewFromInt(10),
	Refundable:  true,
	Description: "Refundable table booking deposit",
}

// Total sums price times quantity, rounded to pence.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}

// OrderRequest builds the payment request for an order.
func OrderRequest(orderID string, items []Item, c Customer) (Request, error) {
	if len(items) == 0 {
		return Request{}, ErrEmptyOrder
	}
	return Request{
		OrderID:  orderID,
		Amount:   Total(items).InexactFloat64(),
		Currency: Currency,
		Items:    items,
		Customer: c,
		Type:     TypeOrder,
	}, nil
}

// DepositRequest builds the payment request for a booking deposit.
func DepositRequest(bookingID string, c Customer) Request {
	return Request{
		OrderID:  bookingID,
		Amount:   BookingDeposit.Amount.InexactFloat64(),
		Currency: Currency,
		Items: []Item{{
			ID:       "booking_deposit",
			Name:     BookingDeposit.Description,
			Price:    BookingDeposit.Amount.InexactFloat64(),
			Quantity: 1,
		}},
		Customer: c,
		Type:     TypeBookingDeposit,
		Metadata: map[string]interface{}{"refundable": BookingDeposit.Refundable},
	}
}
