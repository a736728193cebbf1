package provider

import (
	"encoding/json"
	"sort"
	"strings"
)

// UnknownValidationError is the fixed fallback message returned when a
// provider error payload carried no usable information. Downstream
// consumers match on this string; do not change it.
const UnknownValidationError = "Unknown validation error"

// ErrorPayload is the raw error body of a failed provider call, reduced to
// the two shapes this system understands: per-field messages and general
// messages. Both are optional; a payload with neither normalizes to the
// fallback message.
type ErrorPayload struct {
	FieldErrors     map[string]string `json:"errors"`
	GeneralMessages []string          `json:"errorMessages"`
}

// Normalize collapses the payload into one human-readable message.
//
// General messages come first in their original order, then one
// "<field>: <message>" fragment per field error sorted by field name
// (Go maps have no insertion order, so sorting is what keeps the output
// deterministic). Fragments are joined with "; ". An empty payload yields
// UnknownValidationError; normalization never fails.
func (p ErrorPayload) Normalize() string {
	fragments := make([]string, 0, len(p.GeneralMessages)+len(p.FieldErrors))

	for _, msg := range p.GeneralMessages {
		fragments = append(fragments, msg)
	}

	if len(p.FieldErrors) > 0 {
		fields := make([]string, 0, len(p.FieldErrors))
		for field := range p.FieldErrors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fragments = append(fragments, field+": "+p.FieldErrors[field])
		}
	}

	if len(fragments) == 0 {
		return UnknownValidationError
	}
	return strings.Join(fragments, "; ")
}

// Empty reports whether the payload carries no messages at all.
func (p ErrorPayload) Empty() bool {
	return len(p.FieldErrors) == 0 && len(p.GeneralMessages) == 0
}

// decodeErrorPayload parses a raw provider error body. Malformed or
// partially populated bodies are tolerated: anything that does not decode
// comes back as an empty payload, which normalizes to the fallback message.
func decodeErrorPayload(raw []byte) ErrorPayload {
	var payload ErrorPayload
	if len(strings.TrimSpace(string(raw))) == 0 {
		return payload
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ErrorPayload{}
	}
	return payload
}
