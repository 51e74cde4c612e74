package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dj-pearson/gym-unity-edge/internal/config"
	"github.com/dj-pearson/gym-unity-edge/internal/monitor"
	"github.com/dj-pearson/gym-unity-edge/internal/ratelimit"
	"github.com/dj-pearson/gym-unity-edge/internal/storage"
	"github.com/dj-pearson/gym-unity-edge/internal/validate"
)

const testSecret = "whsec_test_secret"

func testSecrets(t *testing.T) *config.Secrets {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	content := fmt.Sprintf("keys:\n  hook_key: %s\n", testSecret)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}
	s, err := config.LoadSecrets(path, false)
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	return s
}

func testLimiter(t *testing.T, policies map[string]ratelimit.Policy) *ratelimit.Limiter {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.BootstrapSQLite(ctx, db); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return ratelimit.New(ratelimit.NewSQLiteStore(db), policies)
}

func newTestServer(t *testing.T, hooks []config.WebhookConfig, schemas Schemas, policies map[string]ratelimit.Policy) (*Server, http.Handler) {
	t.Helper()
	limiter := testLimiter(t, policies)
	mon := monitor.New(monitor.Config{}, nil, limiter)

	cfg := config.ServerConfig{
		Listen:       "127.0.0.1:0",
		MaxBodyBytes: 1 << 20,
	}
	s, err := New(cfg, hooks, testSecrets(t), schemas, limiter, mon)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, s.setupRoutes()
}

// stripeHeader builds a "t=...,v1=..." header over the payload with the test
// secret.
func stripeHeader(payload []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func memberSchema() validate.Schema {
	return validate.Schema{
		"email": {Type: validate.TypeEmail, Required: true},
		"name":  {Type: validate.TypeString, Required: true, MaxLength: validate.IntPtr(100)},
	}
}

func stripeHook(schema string) []config.WebhookConfig {
	return []config.WebhookConfig{{
		Path:      "/webhooks/stripe",
		Provider:  "stripe",
		SecretRef: "hook_key",
		Schema:    schema,
	}}
}

func postWebhook(handler http.Handler, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.7:52000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookValidSignature(t *testing.T) {
	_, handler := newTestServer(t, stripeHook("member"), Schemas{"member": memberSchema()}, nil)

	body := []byte(`{"email":"jo@example.com","name":"Jo"}`)
	rec := postWebhook(handler, "/webhooks/stripe", body, map[string]string{
		"Stripe-Signature": stripeHeader(body, time.Now().Unix()),
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Received {
		t.Error("received = false")
	}
}

func TestWebhookRejectionsAreGeneric(t *testing.T) {
	_, handler := newTestServer(t, stripeHook(""), nil, nil)
	body := []byte(`{"event":"x"}`)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed header", "not-a-signature"},
		{"all zero mac", fmt.Sprintf("t=%d,v1=%s", time.Now().Unix(), strings.Repeat("0", 64))},
		{"stale timestamp", stripeHeader(body, time.Now().Add(-time.Hour).Unix())},
		{"tampered payload", stripeHeader([]byte(`{"event":"y"}`), time.Now().Unix())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Stripe-Signature"] = tt.header
			}
			rec := postWebhook(handler, "/webhooks/stripe", body, headers)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			// Every rejection reads identically from outside.
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error != verificationFailed {
				t.Errorf("error = %q, want %q", resp.Error, verificationFailed)
			}
		})
	}
}

func TestWebhookValidationFailure(t *testing.T) {
	_, handler := newTestServer(t, stripeHook("member"), Schemas{"member": memberSchema()}, nil)

	body := []byte(`{"name":"Jo"}`)
	rec := postWebhook(handler, "/webhooks/stripe", body, map[string]string{
		"Stripe-Signature": stripeHeader(body, time.Now().Unix()),
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp validationErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "Validation failed" {
		t.Errorf("error = %q", resp.Error)
	}
	found := false
	for _, fe := range resp.Details {
		if fe.Field == "email" && fe.Code == validate.CodeRequired {
			found = true
		}
	}
	if !found {
		t.Errorf("details missing required email error: %+v", resp.Details)
	}
}

func TestWebhookSecurityScan(t *testing.T) {
	_, handler := newTestServer(t, stripeHook("member"), Schemas{"member": memberSchema()}, nil)

	body := []byte(`{"email":"jo@example.com","name":"<script>alert(1)</script>"}`)
	rec := postWebhook(handler, "/webhooks/stripe", body, map[string]string{
		"Stripe-Signature": stripeHeader(body, time.Now().Unix()),
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "script") {
		t.Error("response echoes attack payload")
	}
}

func TestWebhookInvalidJSON(t *testing.T) {
	_, handler := newTestServer(t, stripeHook("member"), Schemas{"member": memberSchema()}, nil)

	body := []byte(`{"email":`)
	rec := postWebhook(handler, "/webhooks/stripe", body, map[string]string{
		"Stripe-Signature": stripeHeader(body, time.Now().Unix()),
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWebhookBodyTooLarge(t *testing.T) {
	hooks := stripeHook("")
	hooks[0].MaxBodyBytes = 64
	_, handler := newTestServer(t, hooks, nil, nil)

	body := bytes.Repeat([]byte("a"), 128)
	rec := postWebhook(handler, "/webhooks/stripe", body, nil)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestWebhookAllowList(t *testing.T) {
	hooks := stripeHook("")
	hooks[0].AllowedIPs = []string{"198.51.100.0/24"}
	_, handler := newTestServer(t, hooks, nil, nil)

	body := []byte(`{"event":"x"}`)
	headers := map[string]string{
		"Stripe-Signature": stripeHeader(body, time.Now().Unix()),
	}

	// RemoteAddr 203.0.113.7 is outside the allowed range.
	rec := postWebhook(handler, "/webhooks/stripe", body, headers)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for disallowed source", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.RemoteAddr = "198.51.100.20:44000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 for allowed source", rec.Code)
	}
}

func TestWebhookRateLimited(t *testing.T) {
	hooks := stripeHook("")
	hooks[0].RateLimit = "hook"
	policies := map[string]ratelimit.Policy{
		"hook": {MaxRequests: 2, Window: time.Minute},
	}
	_, handler := newTestServer(t, hooks, nil, policies)

	body := []byte(`{"event":"x"}`)
	headers := map[string]string{
		"Stripe-Signature": stripeHeader(body, time.Now().Unix()),
	}

	for i := 0; i < 2; i++ {
		rec := postWebhook(handler, "/webhooks/stripe", body, headers)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	rec := postWebhook(handler, "/webhooks/stripe", body, headers)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitEndpoint(t *testing.T) {
	policies := map[string]ratelimit.Policy{
		"login": {MaxRequests: 2, Window: 15 * time.Minute},
	}
	_, handler := newTestServer(t, nil, nil, policies)

	call := func(action string) *httptest.ResponseRecorder {
		reqBody, _ := json.Marshal(ratelimit.Request{
			Action:     ratelimit.Action(action),
			LimitType:  "login",
			Identifier: "user-42",
			Endpoint:   "/login",
		})
		req := httptest.NewRequest(http.MethodPost, "/v1/ratelimit", bytes.NewReader(reqBody))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := call("check")
	if rec.Code != http.StatusOK {
		t.Fatalf("check status = %d", rec.Code)
	}
	var d ratelimit.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Remaining != 2 {
		t.Errorf("remaining = %d, want 2", d.Remaining)
	}

	// Two increments consume the budget; the third is refused.
	for i := 0; i < 2; i++ {
		if rec := call("increment"); rec.Code != http.StatusOK {
			t.Fatalf("increment %d: status = %d", i+1, rec.Code)
		}
	}
	rec = call("increment")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("limit header = %q", rec.Header().Get("X-RateLimit-Limit"))
	}

	// Reset restores the budget.
	if rec := call("reset"); rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if rec := call("increment"); rec.Code != http.StatusOK {
		t.Fatalf("post-reset increment status = %d", rec.Code)
	}
}

func TestRateLimitEndpointBadRequest(t *testing.T) {
	_, handler := newTestServer(t, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/ratelimit", strings.NewReader(`{"action":`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad JSON", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/ratelimit", strings.NewReader(`{"action":"check"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing limitType", rec.Code)
	}

	// A limit type with no configured policy is the caller's mistake, not a
	// store outage.
	req = httptest.NewRequest(http.MethodPost, "/v1/ratelimit",
		strings.NewReader(`{"action":"increment","limitType":"nope","identifier":"m"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown limitType", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unknown limit type") {
		t.Errorf("body = %q, want unknown limit type message", rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != monitor.StatusHealthy {
		t.Errorf("status = %s", resp.Status)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return fmt.Errorf("dial tcp: refused") }

func TestHealthEndpointUnhealthy(t *testing.T) {
	limiter := testLimiter(t, nil)
	mon := monitor.New(monitor.Config{}, nil, failingPinger{})
	s, err := New(config.ServerConfig{Listen: "127.0.0.1:0", MaxBodyBytes: 1 << 20}, nil, testSecrets(t), nil, limiter, mon)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestOriginAllowed(t *testing.T) {
	s := &Server{cfg: config.ServerConfig{AllowedOrigins: []string{
		"https://app.example.com",
		"https://*.gym.example.com",
	}}}

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
		{"https://tenant1.gym.example.com", true},
		{"https://a.b.gym.example.com", false},
		{"http://tenant1.gym.example.com", false},
		{"https://gym.example.com", false},
	}
	for _, tt := range tests {
		if got := s.originAllowed(nil, tt.origin); got != tt.want {
			t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestUnknownSchemaFailsConstruction(t *testing.T) {
	limiter := testLimiter(t, nil)
	mon := monitor.New(monitor.Config{}, nil, limiter)
	_, err := New(config.ServerConfig{}, stripeHook("missing"), testSecrets(t), nil, limiter, mon)
	if err == nil {
		t.Fatal("expected error for unknown schema")
	}
}
