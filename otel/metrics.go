// Package otel provides OpenTelemetry integration for relay dispatch events.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quillworks/relay"
)

// MetricsHandler translates relay dispatch events into OpenTelemetry
// metrics: counters for attempts and failures, histograms for attempt and
// request durations.
type MetricsHandler struct {
	attempts        metric.Int64Counter
	failures        metric.Int64Counter
	attemptDuration metric.Float64Histogram
	requestDuration metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create its instruments.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	attempts, err := meter.Int64Counter("relay.attempt.count",
		metric.WithDescription("Number of provider call attempts"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("relay.attempt.failures",
		metric.WithDescription("Number of failed provider call attempts"),
	)
	if err != nil {
		return nil, err
	}

	attemptDur, err := meter.Float64Histogram("relay.attempt.duration",
		metric.WithDescription("Duration of one provider call attempt in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestDur, err := meter.Float64Histogram("relay.request.duration",
		metric.WithDescription("Duration of a request from acceptance to terminal result in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		attempts:        attempts,
		failures:        failures,
		attemptDuration: attemptDur,
		requestDuration: requestDur,
	}, nil
}

// Handle processes a dispatch event and records the appropriate metrics.
// It implements relay.EventHandler semantics.
func (h *MetricsHandler) Handle(e relay.Event) {
	switch e.Kind {
	case relay.EventAttemptFinished:
		h.handleAttemptFinished(e)
	case relay.EventRequestFinished:
		h.handleRequestFinished(e)
	}
}

func (h *MetricsHandler) handleAttemptFinished(e relay.Event) {
	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("provider", e.Provider.String()),
	}

	h.attempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	h.attemptDuration.Record(ctx, e.Elapsed.Seconds(), metric.WithAttributes(attrs...))

	if e.Result != nil && !e.Result.IsSuccess() {
		failAttrs := append(attrs,
			attribute.String("error_kind", e.Result.ErrorKind().String()),
		)
		h.failures.Add(ctx, 1, metric.WithAttributes(failAttrs...))
	}
}

func (h *MetricsHandler) handleRequestFinished(e relay.Event) {
	h.requestDuration.Record(context.Background(), e.Elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", e.Provider.String()),
		),
	)
}
