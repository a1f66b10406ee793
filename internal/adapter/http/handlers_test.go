package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pixelgate/pixelgate/internal/adapter/memory"
	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/middleware"
	"github.com/pixelgate/pixelgate/internal/port/cache"
	"github.com/pixelgate/pixelgate/internal/port/conversions"
	"github.com/pixelgate/pixelgate/internal/service"
)

const (
	testSecret     = "shared-webhook-secret"
	testAdminToken = "admin-token"
)

// passthroughCache is a no-op cache so handler tests always hit the store.
type passthroughCache struct{}

func (passthroughCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (passthroughCache) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (passthroughCache) Delete(context.Context, string) error { return nil }

var _ cache.Cache = passthroughCache{}

// fakeCAPI records send attempts and always succeeds.
type fakeCAPI struct {
	calls int
}

func (f *fakeCAPI) Send(_ context.Context, _, _ string, _ *event.Normalized) (*conversions.Response, error) {
	f.calls++
	return &conversions.Response{Result: conversions.ResultSuccess, Status: 200, Summary: "ok"}, nil
}

type fixture struct {
	router *chi.Mux
	store  *memory.Store
	capi   *fakeCAPI
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	capi := &fakeCAPI{}

	tenants := service.NewTenantService(store, passthroughCache{}, time.Minute)
	dispatcher := service.NewDispatcher(tenants, capi, store, nil)
	ingest := service.NewIngestService(dispatcher)
	webhooks := service.NewWebhookService(tenants, ingest)

	h, err := NewHandlers(ingest, tenants, webhooks, store, "https://gateway.test")
	if err != nil {
		t.Fatalf("NewHandlers: %v", err)
	}

	r := chi.NewRouter()
	MountRoutes(r, h, func() string { return testSecret }, testAdminToken)
	return &fixture{router: r, store: store, capi: capi}
}

// activeTenant seeds a tenant with a linked, activated credential.
func (f *fixture) activeTenant(t *testing.T, domainKey string) {
	t.Helper()
	ctx := context.Background()

	tenants := service.NewTenantService(f.store, passthroughCache{}, time.Minute)
	if _, err := tenants.FindOrCreateCredential(ctx, "acct-1", "tok-1", "Main"); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	if _, err := tenants.UpsertTenant(ctx, domainKey, ""); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	if _, _, err := tenants.LinkCredential(ctx, domainKey, "acct-1"); err != nil {
		t.Fatalf("link credential: %v", err)
	}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) records(t *testing.T) []event.LogRecord {
	t.Helper()
	recs, err := f.store.ListRecent(context.Background(), 100)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	return recs
}

// --- ingestion paths ---

func TestPixelQueryActiveTenant(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "shop.example.com")

	payload := `{"event_name":"page_view","shop":"shop.example.com"}`
	req := httptest.NewRequest(http.MethodGet, "/events?d="+url.QueryEscape(payload), nil)
	rec := f.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Fatalf("body = %q, want success acknowledgement", rec.Body.String())
	}
	if f.capi.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", f.capi.calls)
	}

	recs := f.records(t)
	if len(recs) != 1 {
		t.Fatalf("log records = %d, want 1", len(recs))
	}
	if recs[0].StandardName != event.StdPageView || recs[0].Status != event.LogSuccess {
		t.Fatalf("unexpected record %+v", recs[0])
	}
}

func TestPixelQueryMalformedPayloadStillLogged(t *testing.T) {
	f := newFixture(t)

	// Not JSON at all. The image path never rejects; the attempt must
	// still produce exactly one log record, attributed to the unknown
	// tenant.
	req := httptest.NewRequest(http.MethodGet, "/events?d="+url.QueryEscape("{{{not json"), nil)
	rec := f.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	recs := f.records(t)
	if len(recs) != 1 {
		t.Fatalf("log records = %d, want exactly 1", len(recs))
	}
	if recs[0].TenantKey != event.UnknownTenant {
		t.Fatalf("tenant = %q, want %q", recs[0].TenantKey, event.UnknownTenant)
	}
	if f.capi.calls != 0 {
		t.Fatalf("upstream calls = %d, want 0", f.capi.calls)
	}
}

func TestBeaconLenientDegradation(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/events/beacon", strings.NewReader("not-json"))
	rec := f.do(req)

	// Beacon callers cannot act on errors; the path accepts and logs.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := len(f.records(t)); got != 1 {
		t.Fatalf("log records = %d, want 1", got)
	}
}

func TestBeaconOversizeBodyStillLogged(t *testing.T) {
	f := newFixture(t)

	// Past the read limit the body is truncated, which breaks the JSON; the
	// attempt must still be acknowledged and logged like any other beacon.
	body := `{"event_name":"page_view","shop":"shop.example.com","pad":"` +
		strings.Repeat("x", 2<<20) + `"}`
	rec := f.do(httptest.NewRequest(http.MethodPost, "/events/beacon", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	recs := f.records(t)
	if len(recs) != 1 {
		t.Fatalf("log records = %d, want 1", len(recs))
	}
	if recs[0].TenantKey != event.UnknownTenant {
		t.Fatalf("tenant = %q, want %q", recs[0].TenantKey, event.UnknownTenant)
	}
}

func TestBeaconActiveTenant(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "shop.example.com")

	body := `{"event_name":"checkout_started","shop":"shop.example.com","value":"19.99"}`
	req := httptest.NewRequest(http.MethodPost, "/events/beacon", strings.NewReader(body))
	rec := f.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	recs := f.records(t)
	if len(recs) != 1 || recs[0].StandardName != event.StdInitiateCheckout {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestStrictPathRejectsMalformedJSON(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("not-json"))
	rec := f.do(req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := len(f.records(t)); got != 0 {
		t.Fatalf("rejected strict events must not be logged, got %d records", got)
	}
}

func TestStrictPathRejectsSchemaViolation(t *testing.T) {
	f := newFixture(t)

	// Valid JSON, but event_name is missing.
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"shop":"shop.example.com"}`))
	rec := f.do(req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := len(f.records(t)); got != 0 {
		t.Fatalf("log records = %d, want 0", got)
	}
}

func TestStrictPathAccepts(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "shop.example.com")

	body := `{"event_name":"product_added_to_cart","shop":"shop.example.com","value":12.5}`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	recs := f.records(t)
	if len(recs) != 1 || recs[0].StandardName != event.StdAddToCart {
		t.Fatalf("unexpected records %+v", recs)
	}
}

// --- webhooks ---

func signedWebhook(t *testing.T, topic, shop string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+topic, bytes.NewReader(body))
	req.Header.Set(middleware.SignatureHeader, middleware.Sign(body, testSecret))
	req.Header.Set(headerPlatformDomain, shop)
	return req
}

func TestWebhookOrderCreate(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "shop.example.com")

	body := []byte(`{"id":1001,"total_price":"42.00","currency":"USD","email":"Buyer@Example.com","line_items":[{"product_id":7,"quantity":2}]}`)
	rec := f.do(signedWebhook(t, "orders/create", "shop.example.com", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	recs := f.records(t)
	if len(recs) != 1 || recs[0].StandardName != event.StdPurchase {
		t.Fatalf("unexpected records %+v", recs)
	}
	if f.capi.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", f.capi.calls)
	}
}

func TestWebhookTamperedSignatureRejectedBeforeParsing(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "shop.example.com")

	body := []byte(`{"id":1001,"total_price":"42.00"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders/create", bytes.NewReader(body))
	req.Header.Set(middleware.SignatureHeader, middleware.Sign([]byte("other body"), testSecret))
	req.Header.Set(headerPlatformDomain, "shop.example.com")
	rec := f.do(req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := len(f.records(t)); got != 0 {
		t.Fatalf("rejected webhooks must produce no records, got %d", got)
	}
	if f.capi.calls != 0 {
		t.Fatalf("upstream calls = %d, want 0", f.capi.calls)
	}
}

func TestWebhookUninstallDisablesTenant(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "shop.example.com")

	rec := f.do(signedWebhook(t, "app/uninstalled", "shop.example.com", []byte(`{}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	cfg, err := f.store.GetConfig(context.Background(), "shop.example.com")
	if err != nil {
		t.Fatalf("config must survive uninstall: %v", err)
	}
	if cfg.GatewayEnabled {
		t.Fatal("uninstall must disable the gateway")
	}
}

func TestWebhookUnknownTopicIgnored(t *testing.T) {
	f := newFixture(t)

	rec := f.do(signedWebhook(t, "refunds/create", "shop.example.com", []byte(`{}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := len(f.records(t)); got != 0 {
		t.Fatalf("log records = %d, want 0", got)
	}
}

// --- storefront surface ---

func TestConfigStatuses(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "linked.example.com")

	ctx := context.Background()
	tenants := service.NewTenantService(f.store, passthroughCache{}, time.Minute)
	if _, err := tenants.UpsertTenant(ctx, "bare.example.com", ""); err != nil {
		t.Fatalf("seed bare tenant: %v", err)
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/config?tenant=linked.example.com", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["configurationStatus"] != service.StatusPixelPresent || got["pixelId"] == "" {
		t.Fatalf("unexpected response %v", got)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/config?tenant=bare.example.com", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["configurationStatus"] != service.StatusNoPixel {
		t.Fatalf("unexpected response %v", got)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/config?tenant=never-seen.example.com", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGatewayScriptServed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/gateway.js?tenant=HTTPS://Shop.Example.com/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `var SHOP = "shop.example.com";`) {
		t.Error("shop domain not normalized into tag")
	}
	if !strings.Contains(body, `var ENDPOINT = "https://gateway.test";`) {
		t.Error("endpoint not substituted")
	}
}

// --- admin API ---

func adminReq(method, target, token string, body string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAdminRequiresToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(adminReq(http.MethodGet, "/api/v1/admin/events", "", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	rec = f.do(adminReq(http.MethodGet, "/api/v1/admin/events", "wrong-token", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAdminTenantLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(adminReq(http.MethodPut, "/api/v1/admin/credentials/acct-9", testAdminToken,
		`{"accessToken":"tok-9","displayName":"Nine"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("create credential: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "tok-9") {
		t.Fatal("access token must never be echoed")
	}

	// Raw domain in the path; normalization strips the www prefix.
	rec = f.do(adminReq(http.MethodPut, "/api/v1/admin/tenants/www.Shop.Example.com", testAdminToken, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert tenant: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(adminReq(http.MethodPost, "/api/v1/admin/tenants/shop.example.com/link", testAdminToken,
		`{"accountId":"acct-9"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("link: %d %s", rec.Code, rec.Body.String())
	}
	var linked linkCredentialResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &linked); err != nil {
		t.Fatalf("decode link response: %v", err)
	}
	if linked.Pending {
		t.Fatal("credential with token must not be pending")
	}
	if !linked.Config.GatewayEnabled {
		t.Fatal("linking an activated credential must enable the gateway")
	}

	// The domain was normalized on the way in.
	if linked.Config.Domain != "shop.example.com" {
		t.Fatalf("domain = %q, want normalized", linked.Config.Domain)
	}

	rec = f.do(adminReq(http.MethodGet, "/api/v1/admin/tenants/shop.example.com", testAdminToken, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("get tenant: %d %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Active bool `json:"active"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode tenant: %v", err)
	}
	if !got.Active {
		t.Fatal("linked tenant must report active")
	}

	rec = f.do(adminReq(http.MethodGet, "/api/v1/admin/tenants/unknown.example.com", testAdminToken, ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown tenant: %d, want 404", rec.Code)
	}
}

func TestAdminListEvents(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "shop.example.com")

	body := `{"event_name":"page_view","shop":"shop.example.com"}`
	f.do(httptest.NewRequest(http.MethodPost, "/events/beacon", strings.NewReader(body)))

	rec := f.do(adminReq(http.MethodGet, "/api/v1/admin/events?tenant=shop.example.com", testAdminToken, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var recs []event.LogRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 || recs[0].StandardName != event.StdPageView {
		t.Fatalf("unexpected records %+v", recs)
	}

	rec = f.do(adminReq(http.MethodGet, "/api/v1/admin/events?limit=0", testAdminToken, ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d, want 400", rec.Code)
	}
}
