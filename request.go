package relay

import (
	"encoding/json"
	"errors"
	"strings"
)

// Provider tags the external service an execution request targets.
// The dispatcher uses the tag to select an adapter; it never interprets
// the request payload itself.
type Provider string

const (
	// ProviderIssueTracker targets the issue-tracker HTTP API.
	ProviderIssueTracker Provider = "issue-tracker"

	// ProviderModel targets a language-model endpoint.
	ProviderModel Provider = "model"
)

// String returns the string representation of the Provider tag.
func (p Provider) String() string {
	return string(p)
}

// Request validation errors.
var (
	ErrNoProvider     = errors.New("relay: request provider is empty")
	ErrBadMaxAttempts = errors.New("relay: request max attempts must be >= 1")
)

// ExecutionRequest is one unit of work asking a provider to perform an
// action. The request is immutable once submitted; every attempt of a retry
// sequence shares its ID for correlation.
type ExecutionRequest struct {
	// ID is a caller-supplied opaque identifier used for correlation and
	// cancellation. The dispatcher assigns one when left empty.
	ID string `json:"id"`

	// Provider selects the adapter that will perform the call.
	Provider Provider `json:"provider"`

	// Payload is the provider-specific input, opaque to the dispatcher.
	Payload json.RawMessage `json:"payload,omitempty"`

	// MaxAttempts bounds the attempt sequence, including the first call.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// Validate checks the request fields the dispatcher depends on.
// An empty ID is allowed; the dispatcher fills one in.
func (r ExecutionRequest) Validate() error {
	if strings.TrimSpace(string(r.Provider)) == "" {
		return ErrNoProvider
	}
	if r.MaxAttempts < 1 {
		return ErrBadMaxAttempts
	}
	return nil
}
