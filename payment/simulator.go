package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	SimulatedSuccessRate = 0.9
	SimulatedDelay       = 2 * time.Second
)

type simulated struct {
	status      Status
	amount      float64
	currency    string
	completedAt time.Time
}

// Simulator stands in for the provider when none is configured. It approves
// a fixed share of payments after a short delay.
type Simulator struct {
	delay time.Duration
	roll  func() float64
	now   func() time.Time

	mu   sync.Mutex
	txns map[string]*simulated
}

type SimulatorOption func(*Simulator)

func WithDelay(d time.Duration) SimulatorOption {
	return func(s *Simulator) { s.delay = d }
}

// WithRoll replaces the random source; a roll below SimulatedSuccessRate
// approves the payment.
func WithRoll(f func() float64) SimulatorOption {
	return func(s *Simulator) { s.roll = f }
}

func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		delay: SimulatedDelay,
		roll:  rand.Float64,
		now:   time.Now,
		txns:  make(map[string]*simulated),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Initiate(ctx context.Context, req Request) (Response, error) {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-t.C:
		}
	}
	if s.roll() >= SimulatedSuccessRate {
		return Response{Success: false, Error: "Payment simulation failed"}, nil
	}
	id := "txn_" + uuid.NewString()
	s.mu.Lock()
	s.txns[id] = &simulated{
		status:      StatusCompleted,
		amount:      req.Amount,
		currency:    req.Currency,
		completedAt: s.now(),
	}
	s.mu.Unlock()
	return Response{Success: true, TransactionID: id}, nil
}

func (s *Simulator) Status(_ context.Context, txnID string) (StatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[txnID]
	if !ok {
		return StatusResponse{}, ErrUnknownTransaction
	}
	out := StatusResponse{Status: t.status, TransactionID: txnID, Amount: t.amount, Currency: t.currency}
	if t.status == StatusCompleted {
		out.CompletedAt = t.completedAt.UTC().Format(time.RFC3339)
	}
	return out, nil
}

func (s *Simulator) Cancel(_ context.Context, txnID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[txnID]
	if !ok || t.status == StatusCancelled {
		return false, nil
	}
	t.status = StatusCancelled
	return true, nil
}
