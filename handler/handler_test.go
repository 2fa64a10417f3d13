package handler_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stevemurr/site-content-server/auth"
	"github.com/stevemurr/site-content-server/content"
	"github.com/stevemurr/site-content-server/handler"
	"github.com/stevemurr/site-content-server/images"
	"github.com/stevemurr/site-content-server/notify"
	"github.com/stevemurr/site-content-server/payment"
	"github.com/stevemurr/site-content-server/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func setup(t *testing.T) (*httptest.Server, store.Store) {
	return setupWith(t, nil)
}

// setupWith builds every collaborator over one memory store. The payment
// simulator approves instantly unless tweak replaces it.
func setupWith(t *testing.T, tweak func(*handler.Dependencies)) (*httptest.Server, store.Store) {
	t.Helper()
	kv := store.NewMemoryStore()
	cs := content.New(kv, content.WithLogger(quiet))
	as, err := auth.New(kv, auth.Config{TokenSecret: "test-secret"})
	if err != nil {
		t.Fatal(err)
	}
	deps := handler.Dependencies{
		Content: cs,
		Auth:    as,
		Images: images.NewIngester(kv,
			images.WithBlobStore(images.NewMemoryBlobStore()),
			images.WithInUse(cs.ImagesInUse),
			images.WithLogger(quiet)),
		Notify: notify.NewService(notify.NewRelayMailer(notify.RelayConfig{}), notify.Templates{
			Order: "template_order", Booking: "template_booking", To: "hello@example.com",
		}, nil, quiet),
		Payments: payment.NewSimulator(payment.WithDelay(0), payment.WithRoll(func() float64 { return 0 })),
		Log:      quiet,
	}
	if tweak != nil {
		tweak(&deps)
	}
	ts := httptest.NewServer(handler.New(deps))
	t.Cleanup(ts.Close)
	return ts, kv
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func do(t *testing.T, method, url, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, b)
	}
}

func login(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := do(t, "POST", ts.URL+"/api/admin/login", "", mustJSON(t, map[string]string{
		"username": auth.DefaultUsername, "password": auth.DefaultPassword,
	}))
	expectStatus(t, resp, 200)
	token, _ := decodeJSON(t, resp.Body)["token"].(string)
	if token == "" {
		t.Fatal("expected token")
	}
	return token
}

func TestRootAndHealth(t *testing.T) {
	ts, _ := setup(t)

	resp := do(t, "GET", ts.URL+"/", "", nil)
	expectStatus(t, resp, 200)
	body := decodeJSON(t, resp.Body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %v", body["status"])
	}
	sections, _ := body["content"].(map[string]any)
	if len(sections) != len(content.Kinds) {
		t.Fatalf("expected %d sections, got %v", len(content.Kinds), sections)
	}

	resp = do(t, "GET", ts.URL+"/health", "", nil)
	expectStatus(t, resp, 200)

	resp = do(t, "GET", ts.URL+"/specials", "", nil)
	expectStatus(t, resp, 404)
	if decodeJSON(t, resp.Body)["detail"] != "Not found" {
		t.Fatal("expected JSON not found body")
	}
}

func TestCORS(t *testing.T) {
	ts, _ := setupWith(t, func(d *handler.Dependencies) {
		d.AllowedOrigins = []string{"https://taqueria.example"}
	})

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/api/admin/content/menu", nil)
	req.Header.Set("Origin", "https://taqueria.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, 204)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://taqueria.example" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials for an echoed origin, got %q", got)
	}

	req, _ = http.NewRequest("GET", ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin for unknown origin, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("expected no credentials for unknown origin, got %q", got)
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	ts, _ := setup(t)

	req, _ := http.NewRequest("GET", ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("expected no credentials with a wildcard origin, got %q", got)
	}
}

func TestContentETag(t *testing.T) {
	ts, _ := setup(t)

	resp := do(t, "GET", ts.URL+"/api/content/hours", "", nil)
	expectStatus(t, resp, 200)
	tag := resp.Header.Get("ETag")
	if tag == "" {
		t.Fatal("expected ETag")
	}
	hours := decodeJSON(t, resp.Body)
	if days, _ := hours["hours"].([]any); len(days) != 7 {
		t.Fatalf("expected 7 default days, got %v", hours["hours"])
	}

	req, _ := http.NewRequest("GET", ts.URL+"/api/content/hours", nil)
	req.Header.Set("If-None-Match", tag)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, 304)

	resp = do(t, "GET", ts.URL+"/api/content/specials", "", nil)
	expectStatus(t, resp, 404)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts, _ := setup(t)
	body := mustJSON(t, map[string]any{"status": "Closed"})

	resp := do(t, "PUT", ts.URL+"/api/admin/content/hours", "", body)
	expectStatus(t, resp, 401)
	resp = do(t, "GET", ts.URL+"/admin", "", nil)
	expectStatus(t, resp, 401)
	resp = do(t, "POST", ts.URL+"/api/admin/reset", "not-a-token", nil)
	expectStatus(t, resp, 401)

	other, err := auth.New(store.NewMemoryStore(), auth.Config{TokenSecret: "someone-else"})
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := other.IssueToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	resp = do(t, "PUT", ts.URL+"/api/admin/content/hours", foreign, body)
	expectStatus(t, resp, 401)
}

// The stored session flag alone never authorizes a write.
func TestSessionFlagIsNotAuthorization(t *testing.T) {
	ts, kv := setup(t)
	if err := kv.SetItem(store.CollectionSession, auth.SessionKey, "true"); err != nil {
		t.Fatal(err)
	}
	resp := do(t, "GET", ts.URL+"/api/admin/session", "", nil)
	expectStatus(t, resp, 200)
	if decodeJSON(t, resp.Body)["authenticated"] != true {
		t.Fatal("expected flag to be reported")
	}
	resp = do(t, "POST", ts.URL+"/api/admin/reset", "", nil)
	expectStatus(t, resp, 401)
}

func TestLoginLogout(t *testing.T) {
	ts, _ := setup(t)

	resp := do(t, "GET", ts.URL+"/api/admin/session", "", nil)
	if decodeJSON(t, resp.Body)["authenticated"] != false {
		t.Fatal("expected signed out")
	}

	token := login(t, ts)
	resp = do(t, "GET", ts.URL+"/api/admin/session", "", nil)
	if decodeJSON(t, resp.Body)["authenticated"] != true {
		t.Fatal("expected signed in")
	}

	resp = do(t, "GET", ts.URL+"/admin", token, nil)
	expectStatus(t, resp, 200)
	view := decodeJSON(t, resp.Body)
	if view["authenticated"] != true {
		t.Fatalf("expected admin view to report session, got %v", view)
	}

	resp = do(t, "POST", ts.URL+"/api/admin/logout", token, nil)
	expectStatus(t, resp, 200)
	resp = do(t, "GET", ts.URL+"/api/admin/session", "", nil)
	if decodeJSON(t, resp.Body)["authenticated"] != false {
		t.Fatal("expected signed out after logout")
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ts, _ := setup(t)
	token := login(t, ts)
	hours := mustJSON(t, map[string]any{"status": "Closed"})

	resp := do(t, "PUT", ts.URL+"/api/admin/content/hours", token, hours)
	expectStatus(t, resp, 200)

	resp = do(t, "POST", ts.URL+"/api/admin/logout", token, nil)
	expectStatus(t, resp, 200)

	resp = do(t, "PUT", ts.URL+"/api/admin/content/hours", token, hours)
	expectStatus(t, resp, 401)
	resp = do(t, "POST", ts.URL+"/api/admin/reset", token, nil)
	expectStatus(t, resp, 401)

	// A later login does not bring the old token back.
	fresh := login(t, ts)
	resp = do(t, "POST", ts.URL+"/api/admin/reset", token, nil)
	expectStatus(t, resp, 401)
	resp = do(t, "POST", ts.URL+"/api/admin/reset", fresh, nil)
	expectStatus(t, resp, 200)
}

func TestLoginThrottle(t *testing.T) {
	ts, _ := setup(t)
	bad := mustJSON(t, map[string]string{"username": "admin", "password": "wrong"})

	resp := do(t, "POST", ts.URL+"/api/admin/login", "", bad)
	expectStatus(t, resp, 401)

	resp = do(t, "POST", ts.URL+"/api/admin/login", "", bad)
	expectStatus(t, resp, 429)
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After")
	}
}

func TestEditAndResetContent(t *testing.T) {
	ts, _ := setup(t)
	token := login(t, ts)

	hours := map[string]any{
		"status":     "Closed",
		"priceRange": "£",
		"hours":      []map[string]string{{"day": "Monday", "hours": "Closed"}},
	}
	resp := do(t, "PUT", ts.URL+"/api/admin/content/hours", token, mustJSON(t, hours))
	expectStatus(t, resp, 200)

	resp = do(t, "GET", ts.URL+"/api/content/hours", "", nil)
	got := decodeJSON(t, resp.Body)
	if got["status"] != "Closed" || len(got["hours"].([]any)) != 1 {
		t.Fatalf("expected override, got %v", got)
	}

	resp = do(t, "GET", ts.URL+"/admin", token, nil)
	overridden := decodeJSON(t, resp.Body)["overridden"].([]any)
	if len(overridden) != 1 || overridden[0] != "hours" {
		t.Fatalf("expected hours overridden, got %v", overridden)
	}

	resp = do(t, "PUT", ts.URL+"/api/admin/content/hours", token, []byte(`[1,2]`))
	expectStatus(t, resp, 400)

	resp = do(t, "DELETE", ts.URL+"/api/admin/content/hours", token, nil)
	expectStatus(t, resp, 200)
	got = decodeJSON(t, resp.Body)
	if len(got["hours"].([]any)) != 7 {
		t.Fatalf("expected default restored, got %v", got)
	}

	resp = do(t, "PUT", ts.URL+"/api/admin/content/about", token, mustJSON(t, map[string]any{"title": "Our story"}))
	expectStatus(t, resp, 200)
	resp = do(t, "POST", ts.URL+"/api/admin/reset", token, nil)
	expectStatus(t, resp, 200)
	resp = do(t, "GET", ts.URL+"/api/content/about", "", nil)
	if decodeJSON(t, resp.Body)["title"] == "Our story" {
		t.Fatal("expected reset to restore the default")
	}
}

func TestQuotaSurfacesAsInsufficientStorage(t *testing.T) {
	ts, _ := setupWith(t, func(d *handler.Dependencies) {
		kv := store.WithQuota(store.NewMemoryStore(), 64)
		d.Content = content.New(kv, content.WithLogger(quiet))
	})
	token := login(t, ts)

	resp := do(t, "PUT", ts.URL+"/api/admin/content/about", token, mustJSON(t, map[string]any{
		"title": strings.Repeat("long ", 40),
	}))
	expectStatus(t, resp, 507)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func upload(t *testing.T, ts *httptest.Server, token, name string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	req, _ := http.NewRequest("POST", ts.URL+"/api/admin/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestImageUploadServeAndSweep(t *testing.T) {
	ts, _ := setup(t)
	token := login(t, ts)

	resp := upload(t, ts, token, "taco.png", pngBytes(t))
	expectStatus(t, resp, 201)
	res := decodeJSON(t, resp.Body)
	ref, _ := res["ref"].(string)
	if !strings.HasPrefix(ref, images.MemoryBlobPrefix) || res["persisted"] != true {
		t.Fatalf("unexpected upload result %v", res)
	}

	resp = do(t, "GET", ts.URL+ref, "", nil)
	expectStatus(t, resp, 200)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}

	resp = upload(t, ts, token, "notes.txt", []byte("plain text, not an image"))
	expectStatus(t, resp, 415)

	// Nothing references the upload, so a sweep removes it.
	resp = do(t, "POST", ts.URL+"/api/admin/images/sweep", token, nil)
	expectStatus(t, resp, 200)
	if decodeJSON(t, resp.Body)["removed"] != float64(1) {
		t.Fatal("expected one image swept")
	}
	resp = do(t, "GET", ts.URL+ref, "", nil)
	expectStatus(t, resp, 404)
}

func TestImageDeleteReleasesBlob(t *testing.T) {
	ts, _ := setup(t)
	token := login(t, ts)

	resp := upload(t, ts, token, "taco.png", pngBytes(t))
	expectStatus(t, resp, 201)
	ref := decodeJSON(t, resp.Body)["ref"].(string)

	resp = do(t, "DELETE", ts.URL+"/api/admin/images", token, mustJSON(t, map[string]string{"ref": ref}))
	expectStatus(t, resp, 200)
	if decodeJSON(t, resp.Body)["removed"] != float64(1) {
		t.Fatal("expected one entry removed")
	}
	resp = do(t, "GET", ts.URL+ref, "", nil)
	expectStatus(t, resp, 404)
}

func validOrder() map[string]any {
	return map[string]any{
		"name":  "Ana",
		"email": "ana@example.com",
		"phone": "07700 900000",
		"order": "2 al pastor, 1 horchata",
	}
}

func TestOrderSubmission(t *testing.T) {
	ts, _ := setup(t)

	bad := validOrder()
	bad["email"] = "ana"
	resp := do(t, "POST", ts.URL+"/api/orders", "", mustJSON(t, bad))
	expectStatus(t, resp, 422)
	if decodeJSON(t, resp.Body)["path"] != "$.email" {
		t.Fatal("expected path of the failing field")
	}

	resp = do(t, "POST", ts.URL+"/api/orders", "", mustJSON(t, validOrder()))
	expectStatus(t, resp, 201)
	out := decodeJSON(t, resp.Body)
	email := out["email"].(map[string]any)
	if !strings.HasPrefix(email["fallback"].(string), "mailto:hello@example.com") {
		t.Fatalf("expected mailto fallback, got %v", email)
	}
	if _, ok := out["payment"]; ok {
		t.Fatal("expected no payment")
	}
}

func TestOrderWithPayment(t *testing.T) {
	ts, _ := setup(t)
	token := login(t, ts)

	order := validOrder()
	order["pay"] = true
	order["items"] = []map[string]any{{"category": "tacos", "id": 1, "quantity": 2}}
	resp := do(t, "POST", ts.URL+"/api/orders", "", mustJSON(t, order))
	expectStatus(t, resp, 201)
	pay := decodeJSON(t, resp.Body)["payment"].(map[string]any)
	txn, _ := pay["transactionId"].(string)
	if pay["success"] != true || !strings.HasPrefix(txn, "txn_") {
		t.Fatalf("unexpected payment %v", pay)
	}

	resp = do(t, "GET", ts.URL+"/api/payments/"+txn, "", nil)
	expectStatus(t, resp, 200)
	st := decodeJSON(t, resp.Body)
	if st["status"] != string(payment.StatusCompleted) || st["amount"] != 9.0 {
		t.Fatalf("unexpected status %v", st)
	}

	resp = do(t, "POST", ts.URL+"/api/admin/payments/"+txn+"/cancel", "", nil)
	expectStatus(t, resp, 401)
	resp = do(t, "POST", ts.URL+"/api/admin/payments/"+txn+"/cancel", token, nil)
	expectStatus(t, resp, 200)
	if decodeJSON(t, resp.Body)["cancelled"] != true {
		t.Fatal("expected cancellation")
	}

	resp = do(t, "GET", ts.URL+"/api/payments/txn_missing", "", nil)
	expectStatus(t, resp, 404)

	order["items"] = []map[string]any{}
	resp = do(t, "POST", ts.URL+"/api/orders", "", mustJSON(t, order))
	expectStatus(t, resp, 422)
}

func TestOrderIsPricedFromMenu(t *testing.T) {
	gw := &recordingGateway{}
	ts, _ := setupWith(t, func(d *handler.Dependencies) {
		gw.Gateway = d.Payments
		d.Payments = gw
	})

	order := validOrder()
	order["pay"] = true
	order["items"] = []map[string]any{{"category": "tacos", "id": 1, "quantity": 50}}
	resp := do(t, "POST", ts.URL+"/api/orders", "", mustJSON(t, order))
	expectStatus(t, resp, 201)
	charged := gw.charged()
	if len(charged) != 1 || charged[0].Amount != 225.0 {
		t.Fatalf("expected 50 x 4.50 from the menu, got %+v", charged)
	}
	if it := charged[0].Items[0]; it.Name != "Al Pastor" || it.ID != "tacos/1" {
		t.Fatalf("expected menu item, got %+v", it)
	}

	order["items"] = []map[string]any{{"category": "tacos", "id": 1, "quantity": 50, "price": 0.01}}
	resp = do(t, "POST", ts.URL+"/api/orders", "", mustJSON(t, order))
	expectStatus(t, resp, 422)

	order["items"] = []map[string]any{{"category": "tacos", "id": 999, "quantity": 1}}
	resp = do(t, "POST", ts.URL+"/api/orders", "", mustJSON(t, order))
	expectStatus(t, resp, 422)
	if decodeJSON(t, resp.Body)["path"] != "$.items[0]" {
		t.Fatal("expected path of the unknown item")
	}
	if n := len(gw.charged()); n != 1 {
		t.Fatalf("expected no further charges, got %d", n)
	}
}

type recordingGateway struct {
	payment.Gateway

	mu       sync.Mutex
	requests []payment.Request
}

func (g *recordingGateway) Initiate(ctx context.Context, req payment.Request) (payment.Response, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.Gateway.Initiate(ctx, req)
}

func (g *recordingGateway) charged() []payment.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payment.Request(nil), g.requests...)
}

type failingMailer struct{}

func (failingMailer) Send(context.Context, string, map[string]string) (notify.Result, error) {
	return notify.Result{}, errors.New("relay down")
}

func TestEmailFailureCancelsPayment(t *testing.T) {
	sim := payment.NewSimulator(payment.WithDelay(0), payment.WithRoll(func() float64 { return 0 }))
	ts, _ := setupWith(t, func(d *handler.Dependencies) {
		d.Payments = sim
		d.Notify = notify.NewService(failingMailer{}, notify.Templates{
			Order: "template_order", Booking: "template_booking", To: "hello@example.com",
		}, nil, quiet)
	})

	order := validOrder()
	order["pay"] = true
	order["items"] = []map[string]any{{"category": "tacos", "id": 1, "quantity": 2}}
	booking := map[string]any{
		"name": "Ana", "email": "ana@example.com", "phone": "07700 900000",
		"date": "2026-10-17", "time": "19:30", "people": "4", "payDeposit": true,
	}

	for path, body := range map[string]map[string]any{"/api/orders": order, "/api/bookings": booking} {
		resp := do(t, "POST", ts.URL+path, "", mustJSON(t, body))
		expectStatus(t, resp, 502)
		out := decodeJSON(t, resp.Body)
		if out["cancelled"] != true {
			t.Fatalf("%s: expected payment cancelled, got %v", path, out)
		}
		txn, _ := out["payment"].(map[string]any)["transactionId"].(string)
		st, err := sim.Status(context.Background(), txn)
		if err != nil {
			t.Fatal(err)
		}
		if st.Status != payment.StatusCancelled {
			t.Fatalf("%s: expected cancelled transaction, got %s", path, st.Status)
		}
	}

	// Without a payment there is nothing to cancel.
	resp := do(t, "POST", ts.URL+"/api/orders", "", mustJSON(t, validOrder()))
	expectStatus(t, resp, 502)
	if _, ok := decodeJSON(t, resp.Body)["payment"]; ok {
		t.Fatal("expected no payment in the response")
	}
}

func TestBookingDepositDeclined(t *testing.T) {
	ts, _ := setupWith(t, func(d *handler.Dependencies) {
		d.Payments = payment.NewSimulator(payment.WithDelay(0), payment.WithRoll(func() float64 { return 0.99 }))
	})
	booking := map[string]any{
		"name": "Ana", "email": "ana@example.com", "phone": "07700 900000",
		"date": "2026-10-17", "time": "19:30", "people": "4",
	}

	resp := do(t, "POST", ts.URL+"/api/bookings", "", mustJSON(t, booking))
	expectStatus(t, resp, 201)
	fallback := decodeJSON(t, resp.Body)["email"].(map[string]any)["fallback"].(string)
	if !strings.Contains(fallback, "October%2017th%2C%202026") {
		t.Fatalf("expected long date in mailto body, got %s", fallback)
	}

	booking["payDeposit"] = true
	resp = do(t, "POST", ts.URL+"/api/bookings", "", mustJSON(t, booking))
	expectStatus(t, resp, 402)
}

func readEvent(t *testing.T, r *bufio.Reader) map[string]any {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended: %v", err)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var v map[string]any
			if err := json.Unmarshal([]byte(data), &v); err != nil {
				t.Fatal(err)
			}
			return v
		}
	}
}

func TestGalleryLiveStream(t *testing.T) {
	ts, _ := setupWith(t, func(d *handler.Dependencies) {
		d.GalleryPoll = time.Hour
	})
	token := login(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/content/gallery/live", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}
	events := bufio.NewReader(resp.Body)

	first := readEvent(t, events)
	if first["title"] == "Fresh from the grill" {
		t.Fatal("expected the default gallery first")
	}

	gallery := map[string]any{
		"title":  "Fresh from the grill",
		"images": []map[string]string{{"src": "/img/new.jpg", "alt": "new", "caption": "New"}},
	}
	put := do(t, "PUT", ts.URL+"/api/admin/content/gallery", token, mustJSON(t, gallery))
	expectStatus(t, put, 200)

	next := readEvent(t, events)
	if next["title"] != "Fresh from the grill" {
		t.Fatalf("expected updated gallery, got %v", next)
	}
}
