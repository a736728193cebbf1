package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quillworks/relay"
)

// Status indicates the last observed availability of a provider.
type Status string

const (
	StatusReady      Status = "ready"
	StatusUnhealthy  Status = "unhealthy"
	StatusUnverified Status = "unverified"
)

const (
	defaultHealthPollInterval = 5 * time.Second
	defaultHealthProbeTimeout = 10 * time.Second
)

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// ParseHealthSchedule parses a five-field UTC cron expression used for
// provider health probes.
func ParseHealthSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("provider: health schedule is required")
	}
	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("provider: health schedule must be UTC-only (timezone prefixes are not allowed)")
	}
	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("provider: invalid health schedule: %w", err)
	}
	return schedule, nil
}

// HealthEvent captures one scheduler-driven probe outcome.
type HealthEvent struct {
	Provider       relay.Provider
	PreviousStatus Status
	Status         Status
	Error          error
}

// HealthEventHandler handles scheduler health events.
type HealthEventHandler func(event HealthEvent)

// HealthSchedulerConfig controls background health probing.
type HealthSchedulerConfig struct {
	Registry *Registry
	// Schedules maps provider tags to five-field cron expressions.
	// Providers without a schedule are never probed.
	Schedules    map[relay.Provider]string
	PollInterval time.Duration
	ProbeTimeout time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
	OnEvent      HealthEventHandler
}

type healthEntry struct {
	schedule cron.Schedule
	next     time.Time
	status   Status
}

// HealthScheduler periodically probes providers that implement
// HealthChecker, on their configured cron schedules.
type HealthScheduler struct {
	registry     *Registry
	pollInterval time.Duration
	probeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	onEvent      HealthEventHandler

	mu      sync.Mutex
	entries map[relay.Provider]*healthEntry
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHealthScheduler creates a health scheduler.
func NewHealthScheduler(cfg HealthSchedulerConfig) (*HealthScheduler, error) {
	if cfg.Registry == nil {
		return nil, errors.New("provider: health scheduler registry is nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultHealthPollInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultHealthProbeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(HealthEvent) {}
	}

	entries := make(map[relay.Provider]*healthEntry, len(cfg.Schedules))
	now := cfg.Now()
	for tag, expr := range cfg.Schedules {
		schedule, err := ParseHealthSchedule(expr)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", tag, err)
		}
		entries[tag] = &healthEntry{
			schedule: schedule,
			next:     schedule.Next(now),
			status:   StatusUnverified,
		}
	}

	return &HealthScheduler{
		registry:     cfg.Registry,
		pollInterval: cfg.PollInterval,
		probeTimeout: cfg.ProbeTimeout,
		now:          cfg.Now,
		logger:       cfg.Logger,
		onEvent:      cfg.OnEvent,
		entries:      entries,
	}, nil
}

// Status returns the last observed status for a provider.
func (s *HealthScheduler) Status(tag relay.Provider) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[tag]; ok {
		return entry.status
	}
	return StatusUnverified
}

// Start begins background probing.
func (s *HealthScheduler) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("provider: health scheduler is nil")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.RunOnce(loopCtx)
			}
		}
	}()

	_ = ctx
	return nil
}

// Stop halts background probing and waits for the loop to exit.
func (s *HealthScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce probes every provider whose schedule is due.
func (s *HealthScheduler) RunOnce(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	due := make(map[relay.Provider]*healthEntry)
	for tag, entry := range s.entries {
		if !entry.next.After(now) {
			due[tag] = entry
		}
	}
	s.mu.Unlock()

	for tag, entry := range due {
		s.probe(ctx, tag, entry, now)
	}
}

func (s *HealthScheduler) probe(ctx context.Context, tag relay.Provider, entry *healthEntry, now time.Time) {
	adapter, err := s.registry.Resolve(tag)
	if err != nil {
		s.logger.Warn("health probe skipped", "provider", tag, "error", err)
		return
	}

	checker, ok := adapter.(HealthChecker)
	if !ok {
		// Providers without a probe stay unverified rather than guessing.
		s.advance(tag, entry, now, StatusUnverified, nil)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	probeErr := checker.CheckHealth(probeCtx)
	cancel()

	status := StatusReady
	if probeErr != nil {
		status = StatusUnhealthy
		s.logger.Warn("health probe failed", "provider", tag, "error", probeErr)
	}
	s.advance(tag, entry, now, status, probeErr)
}

func (s *HealthScheduler) advance(tag relay.Provider, entry *healthEntry, now time.Time, status Status, probeErr error) {
	s.mu.Lock()
	previous := entry.status
	entry.status = status
	entry.next = entry.schedule.Next(now)
	s.mu.Unlock()

	s.onEvent(HealthEvent{
		Provider:       tag,
		PreviousStatus: previous,
		Status:         status,
		Error:          probeErr,
	})
}
