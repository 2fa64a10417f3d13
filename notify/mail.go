// Package notify delivers order and booking submissions to the restaurant:
// by email through a template relay (with a mailto fallback when the relay is
// not configured) and, optionally, to a Telegram chat.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultRelayURL     = "https://api.emailjs.com/api/v1.0/email/send"
	maxErrorBodyPreview = 400
)

// ErrRelay indicates the email relay rejected or failed a send.
var ErrRelay = errors.New("email relay request failed")

// HTTPClient is implemented by http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result reports how a message was handled. When the relay is not
// configured nothing is sent and Fallback holds a mailto URL the visitor can
// open instead.
type Result struct {
	Sent     bool   `json:"sent"`
	Fallback string `json:"fallback,omitempty"`
}

// Mailer sends a templated message.
type Mailer interface {
	Send(ctx context.Context, templateID string, vars map[string]string) (Result, error)
}

// RelayError carries HTTP context for a failed relay call.
type RelayError struct {
	StatusCode int
	Body       string
	Cause      error
}

func (e *RelayError) Error() string {
	parts := []string{ErrRelay.Error()}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if body := compactBody(e.Body); body != "" {
		parts = append(parts, fmt.Sprintf("body=%q", body))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}
	return strings.Join(parts, "; ")
}

func (e *RelayError) Unwrap() error { return ErrRelay }

func compactBody(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if len(body) > maxErrorBodyPreview {
		return body[:maxErrorBodyPreview] + "..."
	}
	return body
}

// RelayConfig identifies the relay account. An empty ServiceID or UserID
// leaves the mailer in fallback mode.
type RelayConfig struct {
	URL       string
	ServiceID string
	UserID    string
}

// RelayMailer posts template sends to an EmailJS-compatible relay.
type RelayMailer struct {
	httpClient HTTPClient
	cfg        RelayConfig
}

type MailerOption func(*RelayMailer)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c HTTPClient) MailerOption {
	return func(m *RelayMailer) { m.httpClient = c }
}

func NewRelayMailer(cfg RelayConfig, opts ...MailerOption) *RelayMailer {
	if cfg.URL == "" {
		cfg.URL = DefaultRelayURL
	}
	m := &RelayMailer{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configured reports whether sends reach the relay.
func (m *RelayMailer) Configured() bool {
	return m.cfg.ServiceID != "" && m.cfg.UserID != ""
}

type relayRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
}

// Send delivers one message. Failures are returned to the caller; there is
// no retry.
func (m *RelayMailer) Send(ctx context.Context, templateID string, vars map[string]string) (Result, error) {
	if !m.Configured() || templateID == "" {
		return Result{Fallback: MailtoURL(vars)}, nil
	}
	payload, err := json.Marshal(relayRequest{
		ServiceID:      m.cfg.ServiceID,
		TemplateID:     templateID,
		UserID:         m.cfg.UserID,
		TemplateParams: vars,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "could not encode relay request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, errors.Wrap(err, "could not build relay request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Result{}, &RelayError{Cause: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &RelayError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return Result{Sent: true}, nil
}

// MailtoURL builds a mailto link addressed to vars["to_email"] with every
// other variable listed in the body.
func MailtoURL(vars map[string]string) string {
	subject := "Website enquiry"
	if name := vars["from_name"]; name != "" {
		if vars["booking_date"] != "" {
			subject = "Booking request from " + name
		} else {
			subject = "Order from " + name
		}
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		if k != "to_email" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var body strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&body, "%s: %s\n", k, vars[k])
	}

	q := url.Values{}
	q.Set("subject", subject)
	q.Set("body", body.String())
	return "mailto:" + vars["to_email"] + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}
