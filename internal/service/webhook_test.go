package service_test

import (
	"context"
	"testing"

	"github.com/pixelgate/pixelgate/internal/adapter/memory"
	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/port/conversions"
	"github.com/pixelgate/pixelgate/internal/service"
)

func newWebhookFixture(t *testing.T) (*service.WebhookService, *fakeCAPI, *service.TenantService, *memory.Store) {
	t.Helper()
	capi := &fakeCAPI{resp: conversions.Response{Result: conversions.ResultSuccess, Status: 200}}
	d, tenants, store := setup(t, capi)
	ingest := service.NewIngestService(d)
	return service.NewWebhookService(tenants, ingest), capi, tenants, store
}

func TestWebhookOrderCreateDispatchesPurchase(t *testing.T) {
	wh, capi, tenants, store := newWebhookFixture(t)
	activeTenant(t, tenants)

	body := []byte(`{
		"id": 5001,
		"total_price": "42.50",
		"currency": "EUR",
		"email": "Buyer@Example.com",
		"line_items": [{"product_id": 7, "quantity": 2}]
	}`)

	if err := wh.HandleTopic(context.Background(), "orders/create", "shop.example.com", body); err != nil {
		t.Fatal(err)
	}

	if capi.callCount() != 1 {
		t.Fatalf("expected one upstream call, got %d", capi.callCount())
	}
	recs, _ := store.ListRecent(context.Background(), 10)
	if len(recs) != 1 || recs[0].StandardName != event.StdPurchase {
		t.Fatalf("expected one Purchase log record, got %+v", recs)
	}
}

func TestWebhookCheckoutCreate(t *testing.T) {
	wh, capi, tenants, store := newWebhookFixture(t)
	activeTenant(t, tenants)

	body := []byte(`{"token":"tok","total_price":"19.99","currency":"USD"}`)
	if err := wh.HandleTopic(context.Background(), "checkouts/create", "shop.example.com", body); err != nil {
		t.Fatal(err)
	}

	if capi.callCount() != 1 {
		t.Fatal("expected one upstream call")
	}
	recs, _ := store.ListRecent(context.Background(), 10)
	if recs[0].StandardName != event.StdInitiateCheckout {
		t.Fatalf("expected InitiateCheckout, got %s", recs[0].StandardName)
	}
}

func TestWebhookCheckoutUpdateWithoutGatewayIgnored(t *testing.T) {
	wh, capi, tenants, _ := newWebhookFixture(t)
	activeTenant(t, tenants)

	body := []byte(`{"token":"tok","total_price":"19.99"}`)
	if err := wh.HandleTopic(context.Background(), "checkouts/update", "shop.example.com", body); err != nil {
		t.Fatal(err)
	}
	if capi.callCount() != 0 {
		t.Fatal("checkout update without payment details must be ignored")
	}
}

func TestWebhookCheckoutUpdateWithGateway(t *testing.T) {
	wh, _, tenants, store := newWebhookFixture(t)
	activeTenant(t, tenants)

	body := []byte(`{"token":"tok","total_price":"19.99","gateway":"stripe"}`)
	if err := wh.HandleTopic(context.Background(), "checkouts/update", "shop.example.com", body); err != nil {
		t.Fatal(err)
	}
	recs, _ := store.ListRecent(context.Background(), 10)
	if len(recs) != 1 || recs[0].StandardName != event.StdAddPaymentInfo {
		t.Fatalf("expected AddPaymentInfo record, got %+v", recs)
	}
}

func TestWebhookUninstallDisablesTenant(t *testing.T) {
	wh, _, tenants, _ := newWebhookFixture(t)
	activeTenant(t, tenants)

	if err := wh.HandleTopic(context.Background(), "app/uninstalled", "shop.example.com", nil); err != nil {
		t.Fatal(err)
	}

	r, err := tenants.Resolve(context.Background(), "shop.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if r.Config.GatewayEnabled {
		t.Fatal("uninstall must disable the gateway")
	}
}

func TestWebhookUninstallUnknownTenantIsNoop(t *testing.T) {
	wh, _, _, _ := newWebhookFixture(t)
	if err := wh.HandleTopic(context.Background(), "app/uninstalled", "never-installed.example.com", nil); err != nil {
		t.Fatalf("uninstall for unknown tenant must not error: %v", err)
	}
}

func TestWebhookUnknownTopicIgnored(t *testing.T) {
	wh, capi, _, _ := newWebhookFixture(t)
	if err := wh.HandleTopic(context.Background(), "themes/publish", "shop.example.com", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if capi.callCount() != 0 {
		t.Fatal("unknown topics must be ignored")
	}
}
