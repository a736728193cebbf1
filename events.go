package relay

import (
	"time"
)

// EventKind identifies the type of event emitted by the dispatcher.
type EventKind string

const (
	// EventRequestAccepted is emitted when a request enters the dispatcher.
	EventRequestAccepted EventKind = "request.accepted"

	// EventAttemptStarted is emitted when an adapter call begins.
	EventAttemptStarted EventKind = "attempt.started"

	// EventAttemptFinished is emitted when an adapter call resolves,
	// successfully or not.
	EventAttemptFinished EventKind = "attempt.finished"

	// EventRequestRetrying is emitted before a backoff wait that precedes
	// another attempt.
	EventRequestRetrying EventKind = "request.retrying"

	// EventRequestCanceled is emitted when a caller cancellation takes effect.
	EventRequestCanceled EventKind = "request.canceled"

	// EventRequestFinished is emitted exactly once per request with its
	// terminal result.
	EventRequestFinished EventKind = "request.finished"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured record of one dispatch lifecycle transition.
// Events are small by design; execution history persistence is the
// history store's concern, not the event payload's.
type Event struct {
	// ID uniquely identifies this event.
	ID string

	// Kind identifies the event type.
	Kind EventKind

	// RequestID correlates the event with its ExecutionRequest.
	RequestID string

	// Provider is the adapter tag the request targets.
	Provider Provider

	// Attempt is the attempt number (1-indexed) this event belongs to.
	// Zero for request-level events that precede the first attempt.
	Attempt int

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the attempt (or request) started.
	Elapsed time.Duration

	// Result carries the attempt or terminal outcome on attempt.finished
	// and request.finished events.
	Result *ExecutionResult
}

// NewEvent creates an event with the current timestamp.
func NewEvent(kind EventKind, requestID string, provider Provider) Event {
	return Event{
		Kind:      kind,
		RequestID: requestID,
		Provider:  provider,
		Time:      time.Now(),
	}
}

// WithAttempt sets the attempt number on the event.
func (e Event) WithAttempt(attempt int) Event {
	e.Attempt = attempt
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithResult attaches an outcome to the event.
func (e Event) WithResult(result ExecutionResult) Event {
	e.Result = &result
	return e
}

// EventHandler is a function type for handling dispatcher events.
// Implementations can log, store, or forward events as needed.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// Events are dropped if the channel is full.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full
		}
	}
}
