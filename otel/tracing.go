package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quillworks/relay"
)

// TracingHandler translates relay dispatch events into OpenTelemetry spans:
// one span per request, with attempt lifecycle recorded as span events.
type TracingHandler struct {
	tracer trace.Tracer

	mu    sync.RWMutex
	spans map[string]trace.Span // requestID -> span
}

// NewTracingHandler creates a TracingHandler that uses the given tracer to
// create spans from dispatch events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

// Handle processes a dispatch event and creates, annotates, or ends the
// request span accordingly. It implements relay.EventHandler semantics.
func (h *TracingHandler) Handle(e relay.Event) {
	switch e.Kind {
	case relay.EventRequestAccepted:
		h.handleAccepted(e)
	case relay.EventAttemptStarted, relay.EventAttemptFinished,
		relay.EventRequestRetrying, relay.EventRequestCanceled:
		h.annotate(e)
	case relay.EventRequestFinished:
		h.handleFinished(e)
	}
}

// ActiveSpanContext returns the span context for an in-flight request, or
// an invalid span context when no span is active.
func (h *TracingHandler) ActiveSpanContext(requestID string) trace.SpanContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if span, ok := h.spans[requestID]; ok {
		return span.SpanContext()
	}
	return trace.SpanContext{}
}

func (h *TracingHandler) handleAccepted(e relay.Event) {
	_, span := h.tracer.Start(context.Background(), "relay.request",
		trace.WithAttributes(
			attribute.String("relay.request_id", e.RequestID),
			attribute.String("relay.provider", e.Provider.String()),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.spans[e.RequestID] = span
	h.mu.Unlock()
}

func (h *TracingHandler) annotate(e relay.Event) {
	h.mu.RLock()
	span, ok := h.spans[e.RequestID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("relay.attempt", e.Attempt),
	}
	if e.Result != nil && !e.Result.IsSuccess() {
		attrs = append(attrs,
			attribute.String("relay.error_kind", e.Result.ErrorKind().String()),
		)
	}
	span.AddEvent(e.Kind.String(),
		trace.WithTimestamp(e.Time),
		trace.WithAttributes(attrs...),
	)
}

func (h *TracingHandler) handleFinished(e relay.Event) {
	h.mu.Lock()
	span, ok := h.spans[e.RequestID]
	delete(h.spans, e.RequestID)
	h.mu.Unlock()
	if !ok {
		return
	}

	if e.Result != nil {
		if e.Result.IsSuccess() {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, e.Result.ErrorMessage())
			span.SetAttributes(
				attribute.String("relay.error_kind", e.Result.ErrorKind().String()),
			)
		}
	}
	span.End(trace.WithTimestamp(e.Time))
}
