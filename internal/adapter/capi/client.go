// Package capi implements the conversions port against the external
// ad-conversions HTTP API.
package capi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/port/conversions"
	"github.com/pixelgate/pixelgate/internal/resilience"
)

// maxResponseBody caps how much of an upstream response is read for the
// summary; the API's real responses are tiny.
const maxResponseBody = 4 << 10

// Client sends events to the conversions API. Calls carry a bounded timeout
// via the underlying http.Client so a slow upstream cannot pin a worker, and
// go through a circuit breaker so a dead upstream is skipped quickly.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// New creates a Client. breaker may be nil to disable circuit breaking.
func New(baseURL, apiVersion string, timeout time.Duration, breaker *resilience.Breaker) *Client {
	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

// sendRequest is the wire shape of one conversions API call.
type sendRequest struct {
	Data []*event.Normalized `json:"data"`
}

// Send forwards one event for the given account. The outcome classification
// mirrors the gateway's fire-and-forget contract: 2xx success, 4xx rejected
// (not retried), anything else unavailable (not retried either).
func (c *Client) Send(ctx context.Context, accountID, accessToken string, ev *event.Normalized) (*conversions.Response, error) {
	payload, err := json.Marshal(sendRequest{Data: []*event.Normalized{ev}})
	if err != nil {
		return &conversions.Response{Result: conversions.ResultRejected, Summary: "marshal event"},
			fmt.Errorf("marshal event: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/events?access_token=%s", c.baseURL, c.apiVersion, accountID, accessToken)

	var resp *conversions.Response
	var sendErr error
	// Only unavailability trips the breaker; a 4xx is the payload's fault,
	// not the upstream's.
	call := func() error {
		resp, sendErr = c.post(ctx, url, payload)
		if resp != nil && resp.Result == conversions.ResultUnavailable {
			return sendErr
		}
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err == resilience.ErrCircuitOpen {
			return &conversions.Response{Result: conversions.ResultUnavailable, Summary: "circuit open"}, err
		}
	} else {
		_ = call()
	}

	if resp == nil {
		resp = &conversions.Response{Result: conversions.ResultUnavailable}
		if sendErr != nil {
			resp.Summary = sendErr.Error()
		}
	}
	return resp, sendErr
}

func (c *Client) post(ctx context.Context, url string, payload []byte) (*conversions.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return &conversions.Response{Result: conversions.ResultUnavailable, Summary: err.Error()},
			fmt.Errorf("conversions api: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	summary := fmt.Sprintf("%d %s", httpResp.StatusCode, bytes.TrimSpace(body))

	switch {
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		return &conversions.Response{Result: conversions.ResultSuccess, Status: httpResp.StatusCode, Summary: summary}, nil
	case httpResp.StatusCode >= 400 && httpResp.StatusCode < 500:
		return &conversions.Response{Result: conversions.ResultRejected, Status: httpResp.StatusCode, Summary: summary},
			fmt.Errorf("conversions api rejected: %s", summary)
	default:
		return &conversions.Response{Result: conversions.ResultUnavailable, Status: httpResp.StatusCode, Summary: summary},
			fmt.Errorf("conversions api unavailable: %s", summary)
	}
}
