// Package provider contains the tool-invocation boundary: the Adapter
// abstraction, the concrete issue-tracker and model adapters, and the
// normalization of provider error payloads into the uniform
// relay.ExecutionResult contract.
//
// Adapters own all interpretation of provider response shapes. Whatever a
// provider returns, an adapter maps it to exactly one ExecutionResult;
// provider failures never surface as Go errors.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quillworks/relay"
)

// Adapter construction and lookup errors.
var (
	// ErrUnknownProvider indicates a request named a provider tag with no
	// registered adapter. This is a programming or configuration error,
	// not a provider failure.
	ErrUnknownProvider = errors.New("provider: unknown provider")

	// ErrUnknownKind indicates a configuration named an adapter kind this
	// package does not implement.
	ErrUnknownKind = errors.New("provider: unknown adapter kind")
)

const defaultInvokeTimeout = 30 * time.Second

// Adapter performs one provider call per Invoke and maps the raw outcome
// into the uniform result contract.
type Adapter interface {
	// Name returns the provider tag this adapter serves.
	Name() relay.Provider

	// Invoke performs the provider call for one attempt. It always returns
	// a populated ExecutionResult; business and transport failures are
	// encoded in the result, never raised.
	Invoke(ctx context.Context, req relay.ExecutionRequest) relay.ExecutionResult

	// Close releases any adapter resources.
	Close(ctx context.Context) error
}

// HealthChecker is implemented by adapters that support a cheap liveness
// probe against their provider.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Settings describes one configured provider instance.
type Settings struct {
	// Tag is the provider tag requests use to select this adapter.
	Tag relay.Provider

	// Kind selects the adapter implementation: "issue-tracker" or "model".
	Kind string

	// Endpoint is the base URL for HTTP-backed adapters.
	Endpoint string

	// Token authenticates HTTP-backed adapters (bearer token).
	Token string

	// Backend names the model backend (e.g. "openai", "anthropic", "ollama").
	Backend string

	// APIKey authenticates the model backend.
	APIKey string

	// Model is the default model identifier when the payload names none.
	Model string

	// TimeoutMS bounds a single provider call. Zero means the default.
	TimeoutMS int
}

func (s Settings) timeout() time.Duration {
	if s.TimeoutMS <= 0 {
		return defaultInvokeTimeout
	}
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// Adapter kind names accepted in Settings.Kind.
const (
	KindIssueTracker = "issue-tracker"
	KindModel        = "model"
)

// NewAdapter builds the adapter implementation selected by the settings.
func NewAdapter(s Settings) (Adapter, error) {
	switch s.Kind {
	case KindIssueTracker:
		return NewIssueTrackerAdapter(s)
	case KindModel:
		return NewModelAdapter(s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
}
