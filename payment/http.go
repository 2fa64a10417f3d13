package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrUpstream indicates the payment provider failed a request.
var ErrUpstream = errors.New("payment provider request failed")

// HTTPClient is implemented by http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// UpstreamError carries HTTP context for a failed provider call.
type UpstreamError struct {
	Method     string
	URL        string
	StatusCode int
	Cause      error
}

func (e *UpstreamError) Error() string {
	parts := []string{ErrUpstream.Error()}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	parts = append(parts, strings.TrimSpace(e.Method+" "+e.URL))
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}
	return strings.Join(parts, "; ")
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// HTTPGateway talks to the provider's REST API with a bearer public key.
type HTTPGateway struct {
	httpClient HTTPClient
	baseURL    string
	publicKey  string
}

type GatewayOption func(*HTTPGateway)

func WithHTTPClient(c HTTPClient) GatewayOption {
	return func(g *HTTPGateway) { g.httpClient = c }
}

func NewHTTPGateway(baseURL, publicKey string, opts ...GatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		publicKey:  publicKey,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	target := g.baseURL + path
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, errors.Wrap(err, "could not encode payment request")
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, errors.Wrap(err, "could not build payment request")
	}
	req.Header.Set("Authorization", "Bearer "+g.publicKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, &UpstreamError{Method: method, URL: target, Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &UpstreamError{Method: method, URL: target, StatusCode: resp.StatusCode}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, &UpstreamError{Method: method, URL: target, StatusCode: resp.StatusCode, Cause: err}
		}
	}
	return resp.StatusCode, nil
}

// Initiate never fails with an error for provider rejections; they come back
// as an unsuccessful Response carrying the reason.
func (g *HTTPGateway) Initiate(ctx context.Context, req Request) (Response, error) {
	var out Response
	if _, err := g.do(ctx, http.MethodPost, "/payments/initiate", req, &out); err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{Success: false, Error: err.Error()}, nil
	}
	return out, nil
}

func (g *HTTPGateway) Status(ctx context.Context, txnID string) (StatusResponse, error) {
	var out StatusResponse
	if _, err := g.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(txnID)+"/status", nil, &out); err != nil {
		return StatusResponse{}, err
	}
	return out, nil
}

// Cancel reports whether the provider accepted the cancellation.
func (g *HTTPGateway) Cancel(ctx context.Context, txnID string) (bool, error) {
	_, err := g.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(txnID)+"/cancel", nil, nil)
	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.StatusCode > 0 {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
