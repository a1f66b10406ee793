package clientscript

import (
	"strings"
	"testing"
)

func TestRenderSubstitutesEndpointAndShop(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := r.Render("https://gateway.example.com", "shop.example.com")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	body := string(out)

	if !strings.Contains(body, `var ENDPOINT = "https://gateway.example.com";`) {
		t.Error("endpoint not substituted")
	}
	if !strings.Contains(body, `var SHOP = "shop.example.com";`) {
		t.Error("shop not substituted")
	}
	if strings.Contains(body, "{{") {
		t.Error("unrendered template markers remain")
	}
}

func TestRenderedTagOrdersTransports(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := r.Render("https://g.example.com", "s.example.com")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	body := string(out)

	// The capability chain must keep its ranking: sandbox fetch, plain
	// fetch, sendBeacon, then the image fallback.
	order := []string{`"sandbox-fetch"`, `"fetch"`, `"beacon"`, `"image"`}
	last := -1
	for _, name := range order {
		idx := strings.Index(body, name)
		if idx < 0 {
			t.Fatalf("transport %s missing from tag", name)
		}
		if idx < last {
			t.Fatalf("transport %s out of order", name)
		}
		last = idx
	}

	if !strings.Contains(body, `track("page_view", {})`) {
		t.Error("tag must emit an unconditional page view on load")
	}
	if !strings.Contains(body, "/events?d=") {
		t.Error("image fallback must use the query string path")
	}
}

func TestRenderedTagDegradesOnSendFailure(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := r.Render("https://g.example.com", "s.example.com")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	body := string(out)

	// Both failure shapes resume the walk at the next rank: a synchronous
	// throw continues the loop, a rejected promise re-enters attempt.
	if !strings.Contains(body, "attempt(body, next)") {
		t.Error("a rejected send must re-walk the chain from the next transport")
	}
	if !strings.Contains(body, "attempt(payload(name, data), activeIndex)") {
		t.Error("track must start each event at the pinned transport")
	}
}
