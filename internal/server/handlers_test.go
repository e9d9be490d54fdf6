package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsebridge/internal/config"
	"pulsebridge/internal/domain"
	"pulsebridge/internal/verify"
	"pulsebridge/internal/websocket"
)

// --- Fakes ---

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.BroadcastEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event domain.BroadcastEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type fakeRegistry struct {
	mu         sync.Mutex
	registered []string
	removed    []string
	err        error
}

func (r *fakeRegistry) Register(_ context.Context, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.registered = append(r.registered, connectionID)
	return nil
}

func (r *fakeRegistry) List(context.Context, uint64, int64) ([]string, uint64, error) {
	return nil, 0, nil
}

func (r *fakeRegistry) Remove(_ context.Context, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, connectionID)
	return nil
}

type fakeEngine struct {
	mu       sync.Mutex
	payloads []string
	result   domain.FanoutResult
	err      error
}

func (e *fakeEngine) Fanout(_ context.Context, payload string) (domain.FanoutResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = append(e.payloads, payload)
	return e.result, e.err
}

type serverFixture struct {
	server    *Server
	publisher *fakePublisher
	registry  *fakeRegistry
	engine    *fakeEngine
}

func newTestServer(t *testing.T, scheme verify.Scheme) *serverFixture {
	t.Helper()

	cfg := &config.Config{
		AppEnv:               "development",
		Port:                 "8080",
		MaxConnections:       100,
		ConnectionRatePerIP:  100,
		ConnectionBurstPerIP: 100,
	}

	hub := websocket.NewHub()
	t.Cleanup(hub.Stop)

	fixture := &serverFixture{
		publisher: &fakePublisher{},
		registry:  &fakeRegistry{},
		engine:    &fakeEngine{},
	}
	fixture.server = NewServer(
		cfg,
		verify.NewVerifier(scheme, clockwork.NewRealClock()),
		fixture.publisher,
		fixture.registry,
		hub,
		fixture.engine,
		nil,
	)
	return fixture
}

func doRequest(f *serverFixture, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func signGeneric(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// --- Webhook ---

func TestHandleWebhook_DisabledSchemeAccepts(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())

	rec := doRequest(f, http.MethodPost, "/webhooks/payments", `{"amount":42}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, `{"amount":42}`, f.publisher.events[0].Payload)
	assert.Equal(t, "payment_event", f.publisher.events[0].Type)
}

func TestHandleWebhook_MissingSignatureRejected(t *testing.T) {
	f := newTestServer(t, verify.GenericScheme("test-secret-123"))

	rec := doRequest(f, http.MethodPost, "/webhooks/payments", `{"amount":42}`, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"unauthorized","reason":"missing X-Signature header"}`, rec.Body.String())
	assert.Empty(t, f.publisher.events)
}

func TestHandleWebhook_ValidGenericSignatureAccepted(t *testing.T) {
	secret := "test-secret-123"
	body := `{"amount":42}`
	f := newTestServer(t, verify.GenericScheme(secret))

	rec := doRequest(f, http.MethodPost, "/webhooks/payments", body, map[string]string{
		"X-Signature": signGeneric(secret, body),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, body, f.publisher.events[0].Payload)
}

func TestHandleWebhook_TamperedBodyRejected(t *testing.T) {
	secret := "test-secret-123"
	f := newTestServer(t, verify.GenericScheme(secret))

	rec := doRequest(f, http.MethodPost, "/webhooks/payments", `{"amount":43}`, map[string]string{
		"X-Signature": signGeneric(secret, `{"amount":42}`),
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"unauthorized","reason":"signature invalid"}`, rec.Body.String())
}

func TestHandleWebhook_Base64BodyDecodedBeforeVerification(t *testing.T) {
	secret := "test-secret-123"
	body := `{"amount":42}`
	f := newTestServer(t, verify.GenericScheme(secret))

	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	rec := doRequest(f, http.MethodPost, "/webhooks/payments", encoded, map[string]string{
		"Content-Transfer-Encoding": "base64",
		"X-Signature":               signGeneric(secret, body),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, body, f.publisher.events[0].Payload)
}

func TestHandleWebhook_InvalidBase64Rejected(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())

	rec := doRequest(f, http.MethodPost, "/webhooks/payments", "not base64!!!", map[string]string{
		"Content-Transfer-Encoding": "base64",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"unauthorized","reason":"invalid payload encoding"}`, rec.Body.String())
}

func TestHandleWebhook_EventTypeHintPropagated(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())

	rec := doRequest(f, http.MethodPost, "/webhooks/payments", `{}`, map[string]string{
		"X-Event-Type": "refund_event",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "refund_event", f.publisher.events[0].Type)
}

func TestHandleWebhook_PublishFailureIsInternalError(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())
	f.publisher.err = errors.New("channel unavailable")

	rec := doRequest(f, http.MethodPost, "/webhooks/payments", `{}`, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error")
	assert.Contains(t, rec.Body.String(), "channel unavailable")
}

// --- Connections ---

func TestHandleConnect_RegistersConnection(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())

	rec := doRequest(f, http.MethodPost, "/connections", `{"connectionId":"conn-1"}`, map[string]string{
		"Content-Type": "application/json",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":true}`, rec.Body.String())
	assert.Equal(t, []string{"conn-1"}, f.registry.registered)
}

func TestHandleConnect_MissingConnectionID(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())

	rec := doRequest(f, http.MethodPost, "/connections", `{}`, map[string]string{
		"Content-Type": "application/json",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing connectionId")
	assert.Empty(t, f.registry.registered)
}

func TestHandleConnect_StoreFailureIsInternalError(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())
	f.registry.err = errors.New("store unavailable")

	rec := doRequest(f, http.MethodPost, "/connections", `{"connectionId":"conn-1"}`, map[string]string{
		"Content-Type": "application/json",
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "store unavailable")
}

// --- Broadcast ---

func TestHandleBroadcast_EmptyBatch(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())

	rec := doRequest(f, http.MethodPost, "/broadcast", `{"messages":[]}`, map[string]string{
		"Content-Type": "application/json",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"delivered":0}`, rec.Body.String())
	assert.Empty(t, f.engine.payloads)
}

func TestHandleBroadcast_LatestWins(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())
	f.engine.result = domain.FanoutResult{Delivered: 3, StaleCleaned: 1}

	rec := doRequest(f, http.MethodPost, "/broadcast", `{"messages":["a","b","c"]}`, map[string]string{
		"Content-Type": "application/json",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"delivered":3,"staleCleaned":1}`, rec.Body.String())
	assert.Equal(t, []string{"c"}, f.engine.payloads)
}

func TestHandleBroadcast_FanoutFailureIsInternalError(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())
	f.engine.err = errors.New("enumeration failed")

	rec := doRequest(f, http.MethodPost, "/broadcast", `{"messages":["a"]}`, map[string]string{
		"Content-Type": "application/json",
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "enumeration failed")
}

// --- Health ---

func TestHandleLiveness(t *testing.T) {
	f := newTestServer(t, verify.DisabledScheme())

	rec := doRequest(f, http.MethodGet, "/health/live", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
