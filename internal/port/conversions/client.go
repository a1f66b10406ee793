// Package conversions defines the port interface for the external
// ad-conversions API.
package conversions

import (
	"context"

	"github.com/pixelgate/pixelgate/internal/domain/event"
)

// Result classifies the outcome of one send attempt.
type Result string

const (
	// ResultSuccess means the API accepted the event (2xx).
	ResultSuccess Result = "success"
	// ResultRejected means the API refused the payload or credential (4xx).
	// Not retried; the payload will not become valid on its own.
	ResultRejected Result = "rejected"
	// ResultUnavailable means the API failed or was unreachable (5xx or
	// network error). Also not retried; the gateway is fire-and-forget.
	ResultUnavailable Result = "unavailable"
)

// Response describes what the API returned for one send attempt.
type Response struct {
	Result  Result
	Status  int
	Summary string
}

// Client sends normalized events to the conversions API.
type Client interface {
	// Send forwards one event for the given account using its access token.
	// The returned error is non-nil only for ResultRejected and
	// ResultUnavailable and carries the upstream detail.
	Send(ctx context.Context, accountID, accessToken string, ev *event.Normalized) (*Response, error)
}
