// Package dispatch runs execution requests concurrently through provider
// adapters, applying the retry policy keyed on each failure's ErrorKind.
//
// Concurrency is across requests only: one request's attempts are strictly
// sequential, separated by exponential backoff. A bounded worker pool and
// per-provider rate limiters keep provider load under control.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillworks/relay"
	"github.com/quillworks/relay/history"
	"github.com/quillworks/relay/provider"
)

const (
	defaultWorkers     = 4
	defaultMaxAttempts = 3
)

// Dispatcher-level errors. These indicate programming or configuration
// problems; provider failures always come back as ExecutionResults instead.
var (
	ErrNilRegistry      = errors.New("dispatch: registry is nil")
	ErrDuplicateRequest = errors.New("dispatch: request id is already in flight")
)

// Config configures a Dispatcher.
type Config struct {
	// Registry resolves provider tags to adapters. Required.
	Registry *provider.Registry

	// Workers bounds how many requests execute concurrently.
	Workers int

	// Backoff controls the delay between retry attempts.
	Backoff BackoffPolicy

	// Limits caps the call rate per provider. Unlisted providers are
	// not throttled.
	Limits map[relay.Provider]RateLimit

	// History receives one record per attempt. Optional.
	History history.Store

	// Events receives lifecycle events. Optional.
	Events relay.EventHandler

	// DefaultMaxAttempts applies to requests that leave MaxAttempts unset.
	DefaultMaxAttempts int

	Logger *slog.Logger
	Now    func() time.Time
}

// Dispatcher executes requests to terminal results.
type Dispatcher struct {
	registry           *provider.Registry
	slots              chan struct{}
	backoff            BackoffPolicy
	limits             *providerLimiters
	history            history.Store
	events             relay.EventHandler
	logger             *slog.Logger
	now                func() time.Time
	defaultMaxAttempts int

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, ErrNilRegistry
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = defaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	slots := make(chan struct{}, cfg.Workers)
	for range cfg.Workers {
		slots <- struct{}{}
	}

	return &Dispatcher{
		registry:           cfg.Registry,
		slots:              slots,
		backoff:            normalizeBackoffPolicy(cfg.Backoff),
		limits:             newProviderLimiters(cfg.Limits),
		history:            cfg.History,
		events:             cfg.Events,
		logger:             cfg.Logger,
		now:                cfg.Now,
		defaultMaxAttempts: cfg.DefaultMaxAttempts,
		inflight:           make(map[string]context.CancelFunc),
	}, nil
}

// Submit executes one request to its terminal result. It blocks until the
// request finishes and always returns exactly one result unless the request
// itself is malformed, its provider tag is unknown, or its id collides with
// an in-flight request.
func (d *Dispatcher) Submit(ctx context.Context, req relay.ExecutionRequest) (relay.ExecutionResult, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = d.defaultMaxAttempts
	}
	if err := req.Validate(); err != nil {
		return relay.ExecutionResult{}, err
	}

	adapter, err := d.registry.Resolve(req.Provider)
	if err != nil {
		return relay.ExecutionResult{}, err
	}

	cancelCtx, err := d.track(ctx, req.ID)
	if err != nil {
		return relay.ExecutionResult{}, err
	}
	defer d.untrack(req.ID)

	// Acquire a worker slot; the pool bounds cross-request concurrency.
	select {
	case <-d.slots:
	case <-cancelCtx.Done():
		terminal := canceledResult()
		d.emit(relay.NewEvent(relay.EventRequestCanceled, req.ID, req.Provider))
		d.emit(relay.NewEvent(relay.EventRequestFinished, req.ID, req.Provider).WithResult(terminal))
		return terminal, nil
	}
	defer func() { d.slots <- struct{}{} }()

	d.emit(relay.NewEvent(relay.EventRequestAccepted, req.ID, req.Provider))
	start := d.now()

	terminal := d.run(ctx, cancelCtx, adapter, req)

	d.emit(relay.NewEvent(relay.EventRequestFinished, req.ID, req.Provider).
		WithResult(terminal).
		WithElapsed(d.now().Sub(start)))
	d.logger.Debug("request finished",
		"request_id", req.ID,
		"provider", req.Provider,
		"success", terminal.IsSuccess(),
		"error_kind", terminal.ErrorKind().String(),
	)
	return terminal, nil
}

// run walks the attempt sequence for one request. cancelCtx aborts waits;
// the in-flight provider call itself is never killed, only its result
// discarded once cancellation is observed.
func (d *Dispatcher) run(ctx, cancelCtx context.Context, adapter provider.Adapter, req relay.ExecutionRequest) relay.ExecutionResult {
	unknownRetried := false

	for attempt := 1; ; attempt++ {
		if err := d.limits.wait(cancelCtx, req.Provider); err != nil {
			d.emit(relay.NewEvent(relay.EventRequestCanceled, req.ID, req.Provider).WithAttempt(attempt))
			return canceledResult()
		}

		d.emit(relay.NewEvent(relay.EventAttemptStarted, req.ID, req.Provider).WithAttempt(attempt))
		callStart := d.now()
		result := adapter.Invoke(ctx, req)
		elapsed := d.now().Sub(callStart)

		d.emit(relay.NewEvent(relay.EventAttemptFinished, req.ID, req.Provider).
			WithAttempt(attempt).
			WithResult(result).
			WithElapsed(elapsed))
		d.record(ctx, req, attempt, result)

		// Cancellation observed after the call resolves: refuse to act on
		// the result and stop retrying.
		if cancelCtx.Err() != nil {
			d.emit(relay.NewEvent(relay.EventRequestCanceled, req.ID, req.Provider).WithAttempt(attempt))
			return canceledResult()
		}

		if result.IsSuccess() {
			return result
		}

		if !d.shouldRetry(result.ErrorKind(), attempt, req.MaxAttempts, &unknownRetried) {
			return result
		}

		d.emit(relay.NewEvent(relay.EventRequestRetrying, req.ID, req.Provider).WithAttempt(attempt))
		wait := d.backoff.delay(attempt)
		timer := time.NewTimer(wait)
		select {
		case <-cancelCtx.Done():
			timer.Stop()
			d.emit(relay.NewEvent(relay.EventRequestCanceled, req.ID, req.Provider).WithAttempt(attempt))
			return canceledResult()
		case <-timer.C:
		}
	}
}

// shouldRetry applies the retry policy: Transient failures retry up to
// MaxAttempts, Unknown failures retry at most once, everything else is
// terminal on first occurrence.
func (d *Dispatcher) shouldRetry(kind relay.ErrorKind, attempt, maxAttempts int, unknownRetried *bool) bool {
	if attempt >= maxAttempts {
		return false
	}
	switch kind {
	case relay.ErrorKindTransient:
		return true
	case relay.ErrorKindUnknown:
		if *unknownRetried {
			return false
		}
		*unknownRetried = true
		return true
	default:
		return false
	}
}

// Cancel requests cancellation of an in-flight request by id. It returns
// false when no such request is running. Cancellation takes effect at the
// request's next suspension point.
func (d *Dispatcher) Cancel(id string) bool {
	d.mu.Lock()
	cancel, ok := d.inflight[id]
	d.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (d *Dispatcher) track(ctx context.Context, id string) (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.inflight[id]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateRequest, id)
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	d.inflight[id] = cancel
	return cancelCtx, nil
}

func (d *Dispatcher) untrack(id string) {
	d.mu.Lock()
	cancel := d.inflight[id]
	delete(d.inflight, id)
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *Dispatcher) emit(e relay.Event) {
	if d.events == nil {
		return
	}
	e.ID = uuid.NewString()
	d.events(e)
}

func (d *Dispatcher) record(ctx context.Context, req relay.ExecutionRequest, attempt int, result relay.ExecutionResult) {
	if d.history == nil {
		return
	}
	rec := history.AttemptRecord{
		RequestID: req.ID,
		Provider:  req.Provider,
		Attempt:   attempt,
		Result:    result,
		At:        d.now(),
	}
	if err := d.history.Append(ctx, rec); err != nil {
		d.logger.Warn("appending attempt history", "request_id", req.ID, "error", err)
	}
}

func canceledResult() relay.ExecutionResult {
	return relay.Failure("execution canceled by caller", relay.ErrorKindUnknown)
}
