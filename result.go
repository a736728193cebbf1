// Package relay provides the core value types for the relay execution
// pipeline: the uniform ExecutionResult contract, the ExecutionRequest
// submitted by callers, and the lifecycle events the dispatcher emits.
//
// Adapters and the dispatcher live in subpackages:
//
//	import "github.com/quillworks/relay/provider"
//	import "github.com/quillworks/relay/dispatch"
package relay

// ErrorKind classifies a failed execution and drives the retry policy.
// The set is closed: adapters decide the kind at the provider boundary and
// nothing further inward re-inspects raw provider payloads.
type ErrorKind string

const (
	// ErrorKindValidation means the provider rejected the business input.
	// Never retried; the message is surfaced verbatim so the agent can
	// correct its input.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindTransient means a network or availability problem.
	// Retried with backoff.
	ErrorKindTransient ErrorKind = "transient"

	// ErrorKindAuth means a credential or permission problem.
	// Never retried; an operator has to act, not the agent.
	ErrorKindAuth ErrorKind = "auth"

	// ErrorKindNotFound means a referenced resource does not exist.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindUnknown means the failure shape was not recognized.
	// Retried at most once so a persistent bug is not masked as noise.
	ErrorKindUnknown ErrorKind = "unknown"
)

// String returns the string representation of the ErrorKind.
func (k ErrorKind) String() string {
	return string(k)
}

// Retryable reports whether a failure of this kind may be retried at all.
// How many times is the dispatcher's decision, not the kind's.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTransient || k == ErrorKindUnknown
}

// ExecutionResult is the uniform outcome of one tool invocation.
//
// Exactly one of Message / ErrorMessage is populated. The zero value is not
// meaningful; construct results only via Success and Failure so the
// either/or invariant holds structurally.
type ExecutionResult struct {
	ok      bool
	message string
	errMsg  string
	kind    ErrorKind
}

// Success returns a successful result carrying a human-readable summary.
func Success(message string) ExecutionResult {
	return ExecutionResult{ok: true, message: message}
}

// Failure returns a failed result carrying the normalized error message and
// its classification.
func Failure(errorMessage string, kind ErrorKind) ExecutionResult {
	return ExecutionResult{errMsg: errorMessage, kind: kind}
}

// IsSuccess reports whether the invocation succeeded.
func (r ExecutionResult) IsSuccess() bool {
	return r.ok
}

// Message returns the success summary. Empty on failure.
func (r ExecutionResult) Message() string {
	if !r.ok {
		return ""
	}
	return r.message
}

// ErrorMessage returns the normalized error message. Empty on success.
func (r ExecutionResult) ErrorMessage() string {
	if r.ok {
		return ""
	}
	return r.errMsg
}

// ErrorKind returns the failure classification. Empty on success.
func (r ExecutionResult) ErrorKind() ErrorKind {
	if r.ok {
		return ""
	}
	return r.kind
}

// Equal reports whether two results match on every field.
func (r ExecutionResult) Equal(other ExecutionResult) bool {
	return r == other
}

// String renders the result for logs and CLI output.
func (r ExecutionResult) String() string {
	if r.ok {
		return "ok: " + r.message
	}
	return string(r.kind) + ": " + r.errMsg
}
