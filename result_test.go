package relay

import "testing"

func TestSuccessResult(t *testing.T) {
	result := Success("created issue OPS-1")

	if !result.IsSuccess() {
		t.Fatal("IsSuccess() = false, want true")
	}
	if got := result.Message(); got != "created issue OPS-1" {
		t.Fatalf("Message() = %q, want %q", got, "created issue OPS-1")
	}
	if got := result.ErrorMessage(); got != "" {
		t.Fatalf("ErrorMessage() = %q, want empty", got)
	}
	if got := result.ErrorKind(); got != "" {
		t.Fatalf("ErrorKind() = %q, want empty", got)
	}
}

func TestFailureResult(t *testing.T) {
	result := Failure("summary: is required", ErrorKindValidation)

	if result.IsSuccess() {
		t.Fatal("IsSuccess() = true, want false")
	}
	if got := result.ErrorMessage(); got != "summary: is required" {
		t.Fatalf("ErrorMessage() = %q, want %q", got, "summary: is required")
	}
	if got := result.Message(); got != "" {
		t.Fatalf("Message() = %q, want empty", got)
	}
	if got := result.ErrorKind(); got != ErrorKindValidation {
		t.Fatalf("ErrorKind() = %q, want %q", got, ErrorKindValidation)
	}
}

func TestResultEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b ExecutionResult
		want bool
	}{
		{
			name: "equal successes",
			a:    Success("done"),
			b:    Success("done"),
			want: true,
		},
		{
			name: "different messages",
			a:    Success("done"),
			b:    Success("other"),
			want: false,
		},
		{
			name: "equal failures",
			a:    Failure("boom", ErrorKindTransient),
			b:    Failure("boom", ErrorKindTransient),
			want: true,
		},
		{
			name: "same message different kind",
			a:    Failure("boom", ErrorKindTransient),
			b:    Failure("boom", ErrorKindUnknown),
			want: false,
		},
		{
			name: "success vs failure",
			a:    Success("boom"),
			b:    Failure("boom", ErrorKindUnknown),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Fatalf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKindRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{ErrorKindValidation, false},
		{ErrorKindAuth, false},
		{ErrorKindNotFound, false},
		{ErrorKindTransient, true},
		{ErrorKindUnknown, true},
	}

	for _, tt := range tests {
		if got := tt.kind.Retryable(); got != tt.want {
			t.Fatalf("%s.Retryable() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	valid := ExecutionRequest{ID: "r-1", Provider: ProviderModel, MaxAttempts: 1}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}

	noProvider := ExecutionRequest{ID: "r-1", MaxAttempts: 1}
	if err := noProvider.Validate(); err != ErrNoProvider {
		t.Fatalf("Validate() error = %v, want ErrNoProvider", err)
	}

	badAttempts := ExecutionRequest{ID: "r-1", Provider: ProviderModel}
	if err := badAttempts.Validate(); err != ErrBadMaxAttempts {
		t.Fatalf("Validate() error = %v, want ErrBadMaxAttempts", err)
	}
}
