package service_test

import (
	"context"
	"testing"

	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/service"
)

func TestIngestDefaultsUnknownTenant(t *testing.T) {
	capi := &fakeCAPI{}
	d, _, store := setup(t, capi)
	ingest := service.NewIngestService(d)

	in := &event.Inbound{
		Name:      "page_view",
		Transport: event.TransportQuery,
		Trust:     event.TrustClient,
	}
	if err := ingest.Ingest(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	recs, _ := store.ListRecent(context.Background(), 10)
	if len(recs) != 1 {
		t.Fatalf("unattributable events must still be logged, got %d records", len(recs))
	}
	if recs[0].TenantKey != event.UnknownTenant {
		t.Fatalf("expected tenant %q, got %q", event.UnknownTenant, recs[0].TenantKey)
	}
	if capi.callCount() != 0 {
		t.Fatal("unknown tenant must not reach upstream")
	}
}

func TestIngestEndToEndActiveTenant(t *testing.T) {
	capi := &fakeCAPI{resp: scriptedSuccess()}
	d, tenants, store := setup(t, capi)
	activeTenant(t, tenants)
	ingest := service.NewIngestService(d)

	in := &event.Inbound{
		TenantKey:  "https://www.shop.example.com/",
		Name:       "checkout_started",
		RawPayload: map[string]any{"value": "19.99"},
		Transport:  event.TransportBeacon,
		Trust:      event.TrustClient,
	}
	if err := ingest.Ingest(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	if capi.callCount() != 1 {
		t.Fatalf("expected one upstream call, got %d", capi.callCount())
	}
	recs, _ := store.ListRecent(context.Background(), 10)
	if recs[0].StandardName != event.StdInitiateCheckout {
		t.Fatalf("expected InitiateCheckout, got %s", recs[0].StandardName)
	}
}
