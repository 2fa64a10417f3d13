package notify

import (
	"context"
	"log/slog"
)

// Templates names the relay templates and the restaurant inbox.
type Templates struct {
	Order   string
	Booking string
	To      string
}

// Service routes form submissions to the mailer and, when set, a chat.
type Service struct {
	mailer    Mailer
	chat      Notifier
	templates Templates
	log       *slog.Logger
}

func NewService(m Mailer, t Templates, chat Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{mailer: m, chat: chat, templates: t, log: log}
}

// SubmitOrder emails the order. A chat failure is logged and does not fail
// the submission.
func (s *Service) SubmitOrder(ctx context.Context, o Order) (Result, error) {
	res, err := s.mailer.Send(ctx, s.templates.Order, OrderVars(o, s.templates.To))
	if err != nil {
		return res, err
	}
	s.push(ctx, orderSummary(o))
	return res, nil
}

func (s *Service) SubmitBooking(ctx context.Context, b Booking) (Result, error) {
	res, err := s.mailer.Send(ctx, s.templates.Booking, BookingVars(b, s.templates.To))
	if err != nil {
		return res, err
	}
	s.push(ctx, bookingSummary(b))
	return res, nil
}

func (s *Service) push(ctx context.Context, text string) {
	if s.chat == nil {
		return
	}
	if err := s.chat.Notify(ctx, text); err != nil {
		s.log.Warn("Chat notification failed", "err", err)
	}
}
