package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/synapse-app/focusmon/internal/domain"
)

// Service is the command surface consumed by the presentation layer and
// the CLI. Start/stop manage the monitoring loop goroutine; rule edits
// cross into the loop through the rule store's atomic snapshot swap, and
// metric reads see only committed storage state, so none of them ever
// block the loop.
type Service struct {
	cfg       Config
	inspector domain.Inspector
	rules     domain.RuleEngine
	store     domain.SessionStore
	notifier  *Notifier
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	running     atomic.Bool
	sessionOpen atomic.Bool
}

// NewService wires the command surface from injected dependencies.
func NewService(
	cfg Config,
	inspector domain.Inspector,
	rules domain.RuleEngine,
	store domain.SessionStore,
	logger *zap.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		inspector: inspector,
		rules:     rules,
		store:     store,
		notifier:  NewNotifier(cfg.NotificationBuffer, logger),
		logger:    logger,
	}
}

// StartMonitoring transitions Stopped -> Running and begins polling.
func (s *Service) StartMonitoring() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return domain.ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	l := newLoop(s.cfg, s.inspector, s.rules, s.store, s.notifier, &s.sessionOpen, s.logger)
	go func(done chan struct{}) {
		defer close(done)
		defer s.running.Store(false)
		l.run(ctx)
	}(s.done)

	return nil
}

// StopMonitoring transitions Running -> Stopped. It returns only after
// the loop has finalized the open event and session.
func (s *Service) StopMonitoring() error {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

// IsMonitoring reports whether the loop is running. Safe to call
// concurrently; never blocks the loop.
func (s *Service) IsMonitoring() bool {
	return s.running.Load()
}

// SessionOpen reports whether a focus session is currently open.
func (s *Service) SessionOpen() bool {
	return s.sessionOpen.Load()
}

// UpdateAppRules atomically replaces both rule lists. Already-recorded
// events are never touched.
func (s *Service) UpdateAppRules(whitelist, blacklist []string) error {
	if err := s.rules.Replace(whitelist, blacklist); err != nil {
		return err
	}
	s.logger.Info("app rules updated",
		zap.Int("whitelist", len(whitelist)),
		zap.Int("blacklist", len(blacklist)))
	return nil
}

// SnoozeApp suppresses block notifications for the process until the
// duration elapses.
func (s *Service) SnoozeApp(name string, d time.Duration) error {
	if err := s.rules.Snooze(name, d); err != nil {
		return err
	}
	s.logger.Info("app snoozed",
		zap.String("process", name),
		zap.Duration("duration", d))
	return nil
}

// GetInstalledApps lists running applications.
func (s *Service) GetInstalledApps(ctx context.Context) ([]domain.InstalledApp, error) {
	return s.inspector.ListProcesses(ctx)
}

// KillApp terminates a process by identifier.
func (s *Service) KillApp(ctx context.Context, name string) error {
	if err := s.inspector.Terminate(ctx, name); err != nil {
		return fmt.Errorf("kill %q: %w", name, err)
	}
	return nil
}

// Rules returns the current rule set.
func (s *Service) Rules() domain.AppRuleSet {
	return s.rules.Rules()
}

// Summary returns today's aggregates from committed storage state.
func (s *Service) Summary(ctx context.Context) (domain.DailySummary, error) {
	return s.store.AggregateToday(ctx)
}

// TotalFocusTimeToday returns today's total focused work seconds.
func (s *Service) TotalFocusTimeToday(ctx context.Context) (int64, error) {
	summary, err := s.store.AggregateToday(ctx)
	return summary.TotalWorkSeconds, err
}

// TotalDistractionsToday returns today's distraction-attempt count.
func (s *Service) TotalDistractionsToday(ctx context.Context) (int64, error) {
	summary, err := s.store.AggregateToday(ctx)
	return summary.TotalDistractions, err
}

// TotalFocusSessionsToday returns the number of sessions started today.
func (s *Service) TotalFocusSessionsToday(ctx context.Context) (int64, error) {
	summary, err := s.store.AggregateToday(ctx)
	return summary.SessionCount, err
}

// Notifications is the bounded block-notice channel for subscribers.
func (s *Service) Notifications() <-chan domain.BlockedNotice {
	return s.notifier.C()
}
