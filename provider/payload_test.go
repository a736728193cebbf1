package provider

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		payload ErrorPayload
		want    string
	}{
		{
			name:    "empty payload falls back",
			payload: ErrorPayload{},
			want:    UnknownValidationError,
		},
		{
			name: "general messages keep order",
			payload: ErrorPayload{
				GeneralMessages: []string{"A", "B"},
			},
			want: "A; B",
		},
		{
			name: "single field error",
			payload: ErrorPayload{
				FieldErrors: map[string]string{"summary": "is required"},
			},
			want: "summary: is required",
		},
		{
			name: "general messages precede field errors",
			payload: ErrorPayload{
				FieldErrors:     map[string]string{"summary": "is required"},
				GeneralMessages: []string{"Bad request"},
			},
			want: "Bad request; summary: is required",
		},
		{
			name: "field errors sorted by name",
			payload: ErrorPayload{
				FieldErrors: map[string]string{
					"summary":   "is required",
					"project":   "does not exist",
					"issueType": "is invalid",
				},
			},
			want: "issueType: is invalid; project: does not exist; summary: is required",
		},
		{
			name: "empty strings are kept",
			payload: ErrorPayload{
				GeneralMessages: []string{""},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.payload.Normalize(); got != tt.want {
				t.Fatalf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	payload := ErrorPayload{
		FieldErrors: map[string]string{
			"a": "1", "b": "2", "c": "3", "d": "4", "e": "5",
		},
	}
	want := payload.Normalize()
	for i := 0; i < 20; i++ {
		if got := payload.Normalize(); got != want {
			t.Fatalf("Normalize() run %d = %q, want %q", i, got, want)
		}
	}
}

func TestDecodeErrorPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "full body",
			raw:  `{"errors": {"summary": "is required"}, "errorMessages": ["Bad request"]}`,
			want: "Bad request; summary: is required",
		},
		{
			name: "empty body",
			raw:  "",
			want: UnknownValidationError,
		},
		{
			name: "whitespace body",
			raw:  "  \n ",
			want: UnknownValidationError,
		},
		{
			name: "malformed JSON",
			raw:  `{"errors": [`,
			want: UnknownValidationError,
		},
		{
			name: "non-object body",
			raw:  `"oops"`,
			want: UnknownValidationError,
		},
		{
			name: "unrelated keys",
			raw:  `{"detail": "nope"}`,
			want: UnknownValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeErrorPayload([]byte(tt.raw)).Normalize(); got != tt.want {
				t.Fatalf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorPayloadEmpty(t *testing.T) {
	if !(ErrorPayload{}).Empty() {
		t.Fatal("Empty() = false for zero payload, want true")
	}
	full := ErrorPayload{GeneralMessages: []string{"x"}}
	if full.Empty() {
		t.Fatal("Empty() = true for populated payload, want false")
	}
}
