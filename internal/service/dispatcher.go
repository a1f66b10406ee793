package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	pgotel "github.com/pixelgate/pixelgate/internal/adapter/otel"
	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/domain/tenant"
	"github.com/pixelgate/pixelgate/internal/metrics"
	"github.com/pixelgate/pixelgate/internal/port/conversions"
	"github.com/pixelgate/pixelgate/internal/port/eventlog"
	"github.com/pixelgate/pixelgate/internal/port/messagequeue"
)

// Outcome classifies one dispatch attempt.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeRejected    Outcome = "rejected"
	OutcomeUnavailable Outcome = "unavailable"
)

// Skip reasons recorded when a tenant is not active.
const (
	SkipNoConfig          = "no-config"
	SkipPendingCredential = "pending-credential"
	SkipDisabled          = "disabled"
)

// DispatchResult is the classified outcome of one attempt. SkipReason is set
// only for OutcomeSkipped.
type DispatchResult struct {
	Outcome    Outcome
	SkipReason string
	Summary    string
}

// OutcomePublisher receives every dispatch log record, serialized as JSON.
// Implementations must not block ingestion; failures are logged and ignored.
type OutcomePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Dispatcher forwards normalized events to the conversions API and records
// exactly one log record per attempt. It never retries: the originating
// beacon cannot wait for a retry cycle, so sustained upstream failure is an
// operator concern surfaced through the log, not a delivery guarantee.
type Dispatcher struct {
	tenants *TenantService
	client  conversions.Client
	log     eventlog.Store
	pub     OutcomePublisher // optional
}

// NewDispatcher creates a Dispatcher. pub may be nil.
func NewDispatcher(tenants *TenantService, client conversions.Client, log eventlog.Store, pub OutcomePublisher) *Dispatcher {
	return &Dispatcher{tenants: tenants, client: client, log: log, pub: pub}
}

// Dispatch resolves the tenant, forwards the event when the tenant is
// active, and appends one log record whatever happens. The returned error is
// non-nil only when the log write itself fails; upstream failures are
// reflected in the result and the log, never bubbled to the beacon caller.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantKey string, ev *event.Normalized) (*DispatchResult, error) {
	key := tenant.NormalizeDomain(tenantKey)
	if key == "" {
		key = event.UnknownTenant
	}

	ctx, span := pgotel.StartDispatchSpan(ctx, key, ev.StandardName)
	defer span.End()

	res := d.attempt(ctx, key, ev)
	metrics.EventsDispatched.WithLabelValues(string(res.Outcome)).Inc()

	rec := &event.LogRecord{
		ID:           uuid.NewString(),
		TenantKey:    key,
		StandardName: ev.StandardName,
		CreatedAt:    time.Now().UTC(),
	}
	switch res.Outcome {
	case OutcomeSuccess:
		rec.Status = event.LogSuccess
		rec.ResponseSummary = res.Summary
	case OutcomeSkipped:
		rec.Status = event.LogError
		rec.ResponseSummary = "skipped"
		rec.ErrorDetail = res.SkipReason
	default:
		rec.Status = event.LogError
		rec.ResponseSummary = string(res.Outcome)
		rec.ErrorDetail = res.Summary
	}

	if err := d.log.Append(ctx, rec); err != nil {
		metrics.EventLogFailures.Inc()
		return res, fmt.Errorf("append event log: %w", err)
	}

	d.publish(ctx, rec)
	return res, nil
}

// attempt resolves and, when active, calls the conversions API.
func (d *Dispatcher) attempt(ctx context.Context, tenantKey string, ev *event.Normalized) *DispatchResult {
	r, err := d.tenants.Resolve(ctx, tenantKey)
	if errors.Is(err, domain.ErrNotFound) {
		return &DispatchResult{Outcome: OutcomeSkipped, SkipReason: SkipNoConfig}
	}
	if err != nil {
		return &DispatchResult{Outcome: OutcomeUnavailable, Summary: err.Error()}
	}

	if !r.Config.GatewayEnabled {
		return &DispatchResult{Outcome: OutcomeSkipped, SkipReason: SkipDisabled}
	}
	if r.Credential == nil || !r.Credential.Activated() {
		return &DispatchResult{Outcome: OutcomeSkipped, SkipReason: SkipPendingCredential}
	}

	start := time.Now()
	resp, err := d.client.Send(ctx, r.Credential.AccountID, r.Credential.AccessToken, ev)
	metrics.DispatchDuration.Observe(float64(time.Since(start).Milliseconds()))

	if resp == nil {
		resp = &conversions.Response{Result: conversions.ResultUnavailable}
	}
	summary := resp.Summary
	if err != nil && summary == "" {
		summary = err.Error()
	}

	switch resp.Result {
	case conversions.ResultSuccess:
		return &DispatchResult{Outcome: OutcomeSuccess, Summary: summary}
	case conversions.ResultRejected:
		return &DispatchResult{Outcome: OutcomeRejected, Summary: summary}
	default:
		return &DispatchResult{Outcome: OutcomeUnavailable, Summary: summary}
	}
}

// publish forwards the log record to the outcome stream, best effort.
func (d *Dispatcher) publish(ctx context.Context, rec *event.LogRecord) {
	if d.pub == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := d.pub.Publish(ctx, messagequeue.SubjectEventDispatched, data); err != nil {
		slog.Warn("outcome publish failed", "error", err)
	}
}
