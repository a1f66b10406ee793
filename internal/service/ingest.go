package service

import (
	"context"
	"log/slog"

	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/metrics"
)

// IngestService is the single funnel every ingestion path hands events to:
// normalize, dispatch, log. It exists so the three wire encodings share one
// code path after decoding.
type IngestService struct {
	dispatcher *Dispatcher
}

// NewIngestService creates an IngestService.
func NewIngestService(d *Dispatcher) *IngestService {
	return &IngestService{dispatcher: d}
}

// Ingest processes one decoded inbound event. The returned error is non-nil
// only when the event log write failed; every other failure is absorbed and
// recorded, because beacon-style callers cannot act on a response.
func (s *IngestService) Ingest(ctx context.Context, in *event.Inbound) error {
	metrics.EventsIngested.WithLabelValues(string(in.Transport)).Inc()

	if in.TenantKey == "" {
		// An unattributable event is still logged, never dropped silently.
		in.TenantKey = event.UnknownTenant
	}

	normalized := NormalizeEvent(in)

	res, err := s.dispatcher.Dispatch(ctx, in.TenantKey, normalized)
	if err != nil {
		return err
	}

	slog.Debug("event ingested",
		"tenant", in.TenantKey,
		"event", normalized.StandardName,
		"transport", in.Transport,
		"outcome", res.Outcome,
	)
	return nil
}
