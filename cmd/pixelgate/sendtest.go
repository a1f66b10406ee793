package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pixelgate/pixelgate/internal/transport"
)

// runSendTestEvent pushes one event at a running gateway through the same
// transport chain the storefront tag negotiates.
func runSendTestEvent(args []string) error {
	fs := flag.NewFlagSet("send-test-event", flag.ContinueOnError)
	endpoint := fs.String("endpoint", "http://localhost:8080", "gateway base URL")
	shop := fs.String("shop", "", "storefront domain (required)")
	name := fs.String("event", "page_view", "platform event name")
	mode := fs.String("transport", "auto", "transport: auto, json, beacon, or image")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *shop == "" {
		return fmt.Errorf("--shop is required")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var chain []transport.Transport
	switch *mode {
	case "auto":
		chain = transport.DefaultChain(client)
	case "json":
		chain = []transport.Transport{&transport.JSONTransport{Client: client}}
	case "beacon":
		chain = []transport.Transport{&transport.BeaconTransport{Client: client}}
	case "image":
		chain = []transport.Transport{&transport.ImageTransport{Client: client}}
	default:
		return fmt.Errorf("unknown transport: %s", *mode)
	}

	n, err := transport.Negotiate(*endpoint, chain...)
	if err != nil {
		return fmt.Errorf("negotiate transport: %w", err)
	}

	payload := map[string]any{
		"event_name": *name,
		"shop":       *shop,
		"timestamp":  time.Now().Unix(),
		"test":       true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := n.Send(ctx, payload); err != nil {
		return fmt.Errorf("send via %s: %w", n.Active(), err)
	}
	fmt.Fprintf(os.Stderr, "Event %s sent for %s via %s transport\n", *name, *shop, n.Active())
	return nil
}
