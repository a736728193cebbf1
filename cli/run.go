package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"

	"github.com/quillworks/relay"
	"github.com/quillworks/relay/config"
	"github.com/quillworks/relay/dispatch"
	"github.com/quillworks/relay/history"
	"github.com/quillworks/relay/otel"
	"github.com/quillworks/relay/provider"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <requests-file>",
		Short: "Execute a batch of tool requests",
		Long:  "Execute every request in a requests file through its configured provider and print the terminal results.",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringP("config", "c", "relay.yaml", "Path to the relay configuration file")
	cmd.Flags().String("env-file", ".env", "Path to a dotenv file with credentials (missing file is ignored)")
	cmd.Flags().String("format", "pretty", "Output format: json | pretty")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Overall execution timeout")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	loadEnvFile(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	requests, err := loadRequests(args[0])
	if err != nil {
		return err
	}

	registry, err := provider.NewRegistryFromSettings(cfg.ProviderSettings())
	if err != nil {
		return exitError(exitRuntime, "building providers: %v", err)
	}
	defer registry.Close(context.Background())

	store, err := openHistoryStore(cfg)
	if err != nil {
		return exitError(exitRuntime, "opening history store: %v", err)
	}
	defer store.Close()

	events, shutdown, err := buildEventHandler(cmd.Context(), cfg)
	if err != nil {
		return exitError(exitRuntime, "initializing telemetry: %v", err)
	}
	if shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Registry:           registry,
		Workers:            cfg.Dispatcher.Workers,
		Backoff:            cfg.Backoff(),
		Limits:             cfg.RateLimits(),
		History:            store,
		Events:             events,
		DefaultMaxAttempts: cfg.Dispatcher.DefaultMaxAttempts,
	})
	if err != nil {
		return exitError(exitRuntime, "building dispatcher: %v", err)
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	outcomes := submitAll(ctx, dispatcher, requests)

	format, _ := cmd.Flags().GetString("format")
	if err := writeOutcomes(cmd.OutOrStdout(), outcomes, format); err != nil {
		return exitError(exitRuntime, "writing output: %v", err)
	}

	for _, o := range outcomes {
		if o.Err != nil {
			return exitError(exitRuntime, "request %s: %v", o.Request.ID, o.Err)
		}
	}
	for _, o := range outcomes {
		if !o.Result.IsSuccess() {
			return exitError(exitFailedResults, "%d of %d requests failed", countFailed(outcomes), len(outcomes))
		}
	}
	return nil
}

// outcome pairs a request with its terminal result (or dispatcher error).
type outcome struct {
	Request relay.ExecutionRequest
	Result  relay.ExecutionResult
	Err     error
}

// submitAll dispatches every request concurrently and returns outcomes in
// input order. The dispatcher's worker pool bounds actual concurrency.
func submitAll(ctx context.Context, dispatcher *dispatch.Dispatcher, requests []relay.ExecutionRequest) []outcome {
	outcomes := make([]outcome, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := dispatcher.Submit(ctx, req)
			outcomes[i] = outcome{Request: req, Result: result, Err: err}
		}()
	}
	wg.Wait()
	return outcomes
}

// fileRequest is the requests-file representation of an ExecutionRequest.
// Payloads are written as plain mappings and re-encoded to JSON for the
// adapter.
type fileRequest struct {
	ID          string         `yaml:"id" json:"id"`
	Provider    string         `yaml:"provider" json:"provider"`
	Payload     map[string]any `yaml:"payload" json:"payload"`
	MaxAttempts int            `yaml:"max_attempts" json:"max_attempts"`
}

type requestsFile struct {
	Requests []fileRequest `yaml:"requests" json:"requests"`
}

// loadRequests reads a YAML (or JSON) requests file.
func loadRequests(path string) ([]relay.ExecutionRequest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "requests file not found: %s", path)
		}
		return nil, exitError(exitRuntime, "reading requests file: %v", err)
	}
	return parseRequests(data)
}

func parseRequests(data []byte) ([]relay.ExecutionRequest, error) {
	var file requestsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, exitError(exitInputParse, "parsing requests file: %v", err)
	}
	if len(file.Requests) == 0 {
		return nil, exitError(exitInputParse, "requests file contains no requests")
	}

	out := make([]relay.ExecutionRequest, 0, len(file.Requests))
	for i, fr := range file.Requests {
		var payload json.RawMessage
		if fr.Payload != nil {
			encoded, err := json.Marshal(fr.Payload)
			if err != nil {
				return nil, exitError(exitInputParse, "request %d: encoding payload: %v", i, err)
			}
			payload = encoded
		}
		out = append(out, relay.ExecutionRequest{
			ID:          fr.ID,
			Provider:    relay.Provider(fr.Provider),
			Payload:     payload,
			MaxAttempts: fr.MaxAttempts,
		})
	}
	return out, nil
}

func loadEnvFile(cmd *cobra.Command) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile == "" {
		return
	}
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	_ = godotenv.Load(envFile)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "config file not found: %s", path)
		}
		return nil, exitError(exitInputParse, "%v", err)
	}
	return cfg, nil
}

func openHistoryStore(cfg *config.Config) (history.Store, error) {
	if cfg.History.Path == "" {
		return history.NewMemoryStore(), nil
	}
	return history.NewSQLiteStore(cfg.History.Path)
}

// buildEventHandler wires dispatch events into OTel metrics and tracing.
// When an OTLP endpoint is configured, spans are exported there; otherwise
// the global no-op providers swallow the instrumentation.
func buildEventHandler(ctx context.Context, cfg *config.Config) (relay.EventHandler, func(context.Context) error, error) {
	var shutdown func(context.Context) error
	if cfg.Telemetry.OTLPEndpoint != "" {
		var err error
		shutdown, err = otel.InitTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, "relay")
		if err != nil {
			return nil, nil, err
		}
	}

	metrics, err := otel.NewMetricsHandler(otelapi.Meter("relay"))
	if err != nil {
		return nil, nil, err
	}
	tracing := otel.NewTracingHandler(otelapi.Tracer("relay"))

	return relay.MultiEventHandler(metrics.Handle, tracing.Handle), shutdown, nil
}

func countFailed(outcomes []outcome) int {
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil || !o.Result.IsSuccess() {
			failed++
		}
	}
	return failed
}

// writeOutcomes renders the outcomes in the requested format.
func writeOutcomes(w io.Writer, outcomes []outcome, format string) error {
	switch format {
	case "json":
		return writeOutcomesJSON(w, outcomes)
	case "pretty", "":
		writeOutcomesPretty(w, outcomes)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

type outcomeJSON struct {
	ID           string `json:"id"`
	Provider     string `json:"provider"`
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
}

func writeOutcomesJSON(w io.Writer, outcomes []outcome) error {
	out := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		entry := outcomeJSON{
			ID:       o.Request.ID,
			Provider: o.Request.Provider.String(),
		}
		switch {
		case o.Err != nil:
			entry.ErrorMessage = o.Err.Error()
			entry.ErrorKind = relay.ErrorKindUnknown.String()
		case o.Result.IsSuccess():
			entry.Success = true
			entry.Message = o.Result.Message()
		default:
			entry.ErrorMessage = o.Result.ErrorMessage()
			entry.ErrorKind = o.Result.ErrorKind().String()
		}
		out = append(out, entry)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeOutcomesPretty(w io.Writer, outcomes []outcome) {
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(w, "%s\terror\t%v\n", o.Request.ID, o.Err)
		case o.Result.IsSuccess():
			fmt.Fprintf(w, "%s\tok\t%s\n", o.Request.ID, o.Result.Message())
		default:
			fmt.Fprintf(w, "%s\tfailed(%s)\t%s\n", o.Request.ID, o.Result.ErrorKind(), o.Result.ErrorMessage())
		}
	}
}
