// Package metrics defines the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelgate_events_ingested_total",
		Help: "Total events received, labelled by ingestion transport.",
	}, []string{"transport"})

	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelgate_events_dispatched_total",
		Help: "Total dispatch attempts, labelled by outcome.",
	}, []string{"outcome"})

	WebhooksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pixelgate_webhooks_rejected_total",
		Help: "Total webhook requests rejected by signature verification.",
	})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pixelgate_dispatch_duration_ms",
		Help:    "Conversions API call latency in milliseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	EventLogFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pixelgate_event_log_failures_total",
		Help: "Total failures writing the dispatch log.",
	})
)
