// Package transport implements the gateway's client transport negotiation:
// a ranked capability chain that picks the most capable delivery mechanism
// once and degrades down the chain when a send fails. The embedded storefront tag
// mirrors this chain in JavaScript; this package is the Go rendition used
// by tooling that exercises the gateway from outside a browser.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Transport delivers one encoded event payload to a gateway endpoint.
type Transport interface {
	// Name identifies the transport in logs and diagnostics.
	Name() string
	// Available reports whether this transport can be used in the current
	// environment. Probed once, at negotiation time.
	Available() bool
	// Send delivers the payload. A send error makes the negotiator fall
	// through to the next available transport in the chain.
	Send(ctx context.Context, endpoint string, payload map[string]any) error
}

// ErrNoTransport is returned when no transport in the chain is available.
var ErrNoTransport = errors.New("no available transport")

// Negotiator walks a ranked chain once and pins the first available
// transport. Every send starts at the pinned transport and degrades down
// the chain when an attempt fails; the pin itself never moves, so the
// next event tries the most capable transport again.
type Negotiator struct {
	endpoint string
	chain    []Transport
	start    int
}

// Negotiate probes the chain in order and pins the first available
// transport. The chain order is the capability ranking; callers list the
// most capable transport first.
func Negotiate(endpoint string, chain ...Transport) (*Negotiator, error) {
	for i, t := range chain {
		if t.Available() {
			return &Negotiator{endpoint: endpoint, chain: chain, start: i}, nil
		}
	}
	return nil, ErrNoTransport
}

// Active returns the name of the pinned transport.
func (n *Negotiator) Active() string {
	return n.chain[n.start].Name()
}

// Send delivers one event, starting with the pinned transport. A failed
// attempt falls through to the next available transport; the error is
// non-nil only when the whole chain is exhausted.
func (n *Negotiator) Send(ctx context.Context, payload map[string]any) error {
	var errs []error
	for _, t := range n.chain[n.start:] {
		if !t.Available() {
			continue
		}
		if err := t.Send(ctx, n.endpoint, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

// DefaultChain is the standard ranking used by gateway tooling: a strict
// JSON POST, the lenient beacon POST, then the query string image fallback.
func DefaultChain(client *http.Client) []Transport {
	return []Transport{
		&JSONTransport{Client: client},
		&BeaconTransport{Client: client},
		&ImageTransport{Client: client},
	}
}

// JSONTransport posts events to the strict JSON ingestion path.
type JSONTransport struct {
	Client *http.Client
}

func (t *JSONTransport) Name() string    { return "json" }
func (t *JSONTransport) Available() bool { return t.Client != nil }

func (t *JSONTransport) Send(ctx context.Context, endpoint string, payload map[string]any) error {
	return postJSON(ctx, t.Client, endpoint+"/events", payload)
}

// BeaconTransport posts events to the lenient beacon path. Responses are
// ignored beyond the status line, matching browser sendBeacon semantics.
type BeaconTransport struct {
	Client *http.Client
}

func (t *BeaconTransport) Name() string    { return "beacon" }
func (t *BeaconTransport) Available() bool { return t.Client != nil }

func (t *BeaconTransport) Send(ctx context.Context, endpoint string, payload map[string]any) error {
	return postJSON(ctx, t.Client, endpoint+"/events/beacon", payload)
}

// ImageTransport encodes the whole payload into a query string GET, the
// shape a 1x1 tracking image produces. It is the fallback of last resort
// and is always available.
type ImageTransport struct {
	Client *http.Client
}

func (t *ImageTransport) Name() string    { return "image" }
func (t *ImageTransport) Available() bool { return true }

func (t *ImageTransport) Send(ctx context.Context, endpoint string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	u := endpoint + "/events?d=" + url.QueryEscape(string(data))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build image request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("image send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("image send: status %d", resp.StatusCode)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, u string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("post: status %d", resp.StatusCode)
	}
	return nil
}
