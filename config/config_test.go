package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quillworks/relay"
)

const sampleConfig = `
dispatcher:
  workers: 8
  default_max_attempts: 4
  backoff_base_ms: 100
  backoff_max_ms: 2000
  backoff_jitter_ms: 50

providers:
  issue-tracker:
    kind: issue-tracker
    endpoint: https://tracker.internal/api
    token: ${TRACKER_TOKEN}
    timeout_ms: 15000
    rate_per_second: 5
    rate_burst: 2
    health_schedule: "*/5 * * * *"
  model:
    kind: model
    backend: openai
    api_key: ${OPENAI_API_KEY}
    model: gpt-4o-mini

history:
  path: /var/lib/relay/relay.db

telemetry:
  otlp_endpoint: http://collector:4318
`

func TestParse(t *testing.T) {
	t.Setenv("TRACKER_TOKEN", "tok-123")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Dispatcher.Workers != 8 {
		t.Fatalf("Workers = %d, want 8", cfg.Dispatcher.Workers)
	}
	if cfg.Dispatcher.DefaultMaxAttempts != 4 {
		t.Fatalf("DefaultMaxAttempts = %d, want 4", cfg.Dispatcher.DefaultMaxAttempts)
	}

	tracker, ok := cfg.Providers["issue-tracker"]
	if !ok {
		t.Fatal("Providers missing issue-tracker entry")
	}
	if tracker.Token != "tok-123" {
		t.Fatalf("Token = %q, want env-expanded %q", tracker.Token, "tok-123")
	}
	if tracker.TimeoutMS != 15000 {
		t.Fatalf("TimeoutMS = %d, want 15000", tracker.TimeoutMS)
	}

	model, ok := cfg.Providers["model"]
	if !ok {
		t.Fatal("Providers missing model entry")
	}
	if model.APIKey != "sk-test" {
		t.Fatalf("APIKey = %q, want env-expanded %q", model.APIKey, "sk-test")
	}

	if cfg.History.Path != "/var/lib/relay/relay.db" {
		t.Fatalf("History.Path = %q, want configured path", cfg.History.Path)
	}
	if cfg.Telemetry.OTLPEndpoint != "http://collector:4318" {
		t.Fatalf("OTLPEndpoint = %q, want configured endpoint", cfg.Telemetry.OTLPEndpoint)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TRACKER_TOKEN", "tok-123")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("len(Providers) = %d, want 2", len(cfg.Providers))
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no providers",
			yaml:    "dispatcher:\n  workers: 2\n",
			wantErr: "at least one provider",
		},
		{
			name: "missing kind",
			yaml: `
providers:
  tracker:
    endpoint: https://tracker.internal
`,
			wantErr: "kind is required",
		},
		{
			name: "unknown kind",
			yaml: `
providers:
  tracker:
    kind: carrier-pigeon
`,
			wantErr: "unknown kind",
		},
		{
			name: "bad health schedule",
			yaml: `
providers:
  tracker:
    kind: issue-tracker
    endpoint: https://tracker.internal
    health_schedule: "whenever"
`,
			wantErr: "invalid health schedule",
		},
		{
			name:    "malformed yaml",
			yaml:    "providers: [",
			wantErr: "parsing yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Parse() error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestProviderSettingsSorted(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{
		"zeta":  {Kind: "model", Backend: "openai"},
		"alpha": {Kind: "issue-tracker", Endpoint: "https://a"},
	}}

	settings := cfg.ProviderSettings()
	if len(settings) != 2 {
		t.Fatalf("len(settings) = %d, want 2", len(settings))
	}
	if settings[0].Tag != "alpha" || settings[1].Tag != "zeta" {
		t.Fatalf("tags = %q, %q, want alpha, zeta", settings[0].Tag, settings[1].Tag)
	}
	if settings[0].Kind != "issue-tracker" {
		t.Fatalf("Kind = %q, want issue-tracker", settings[0].Kind)
	}
}

func TestRateLimits(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{
		"limited":   {Kind: "issue-tracker", Endpoint: "https://a", RatePerSecond: 5, RateBurst: 2},
		"unlimited": {Kind: "model", Backend: "openai"},
	}}

	limits := cfg.RateLimits()
	if len(limits) != 1 {
		t.Fatalf("len(limits) = %d, want 1", len(limits))
	}
	limit, ok := limits[relay.Provider("limited")]
	if !ok {
		t.Fatal("limits missing entry for limited provider")
	}
	if limit.PerSecond != 5 || limit.Burst != 2 {
		t.Fatalf("limit = %+v, want {5 2}", limit)
	}
}

func TestHealthSchedules(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{
		"probed":   {Kind: "issue-tracker", Endpoint: "https://a", HealthSchedule: "*/5 * * * *"},
		"unprobed": {Kind: "model", Backend: "openai"},
	}}

	schedules := cfg.HealthSchedules()
	if len(schedules) != 1 {
		t.Fatalf("len(schedules) = %d, want 1", len(schedules))
	}
	if got := schedules[relay.Provider("probed")]; got != "*/5 * * * *" {
		t.Fatalf("schedule = %q, want %q", got, "*/5 * * * *")
	}
}

func TestBackoff(t *testing.T) {
	cfg := &Config{Dispatcher: DispatcherConfig{
		BackoffBaseMS:   100,
		BackoffMaxMS:    2000,
		BackoffJitterMS: 50,
	}}

	policy := cfg.Backoff()
	if policy.Base != 100*time.Millisecond {
		t.Fatalf("Base = %v, want 100ms", policy.Base)
	}
	if policy.Max != 2*time.Second {
		t.Fatalf("Max = %v, want 2s", policy.Max)
	}
	if policy.Jitter != 50*time.Millisecond {
		t.Fatalf("Jitter = %v, want 50ms", policy.Jitter)
	}
}
