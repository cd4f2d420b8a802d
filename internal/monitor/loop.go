package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/synapse-app/focusmon/internal/domain"
	"github.com/synapse-app/focusmon/internal/metrics"
)

// Config holds monitoring loop configuration.
type Config struct {
	PollInterval         time.Duration // foreground poll cadence (default 1s)
	IdleTimeout          time.Duration // close session after this long without Work
	FailureWarnThreshold int           // consecutive failures before a warning
	SummaryInterval      time.Duration // usage summary log cadence
	NotificationBuffer   int           // block-notice channel capacity
}

// DefaultConfig returns default monitoring configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:         time.Second,
		IdleTimeout:          5 * time.Minute,
		FailureWarnThreshold: 10,
		SummaryInterval:      60 * time.Second,
		NotificationBuffer:   16,
	}
}

// loop is the single goroutine that drives poll -> classify -> persist.
// It is the sole writer of session state and of the two persisted
// tables. Everything it owns is unexported and touched by no one else.
type loop struct {
	cfg       Config
	inspector domain.Inspector
	rules     domain.RuleEngine
	store     domain.SessionStore
	notifier  *Notifier
	tracker   *metrics.Tracker
	logger    *zap.Logger

	machine     *SessionMachine
	sessionOpen *atomic.Bool // published for concurrent snapshot reads

	// records retained across ticks until a write succeeds
	pendingSessions []ClosedSession
	pendingEvents   []domain.AppUsageEvent

	failStreak      int
	writeFailStreak int
}

func newLoop(
	cfg Config,
	inspector domain.Inspector,
	rules domain.RuleEngine,
	store domain.SessionStore,
	notifier *Notifier,
	sessionOpen *atomic.Bool,
	logger *zap.Logger,
) *loop {
	return &loop{
		cfg:         cfg,
		inspector:   inspector,
		rules:       rules,
		store:       store,
		notifier:    notifier,
		tracker:     metrics.NewTracker(cfg.SummaryInterval),
		logger:      logger,
		machine:     NewSessionMachine(cfg.IdleTimeout),
		sessionOpen: sessionOpen,
	}
}

// run blocks until the context is canceled, then synchronously finalizes
// the open event and session before returning.
func (l *loop) run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	l.logger.Info("monitoring started",
		zap.Duration("poll_interval", l.cfg.PollInterval),
		zap.Duration("idle_timeout", l.cfg.IdleTimeout))

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("monitoring stopping")
			l.finalize()
			return

		case <-ticker.C:
			l.tick(time.Now())
		}
	}
}

// tick runs one poll -> classify -> persist cycle. No error in here ever
// stops the loop.
func (l *loop) tick(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.PollInterval)
	defer cancel()

	var fx TickEffects
	proc, err := l.inspector.Foreground(ctx)
	if err != nil {
		l.failStreak++
		if errors.Is(err, domain.ErrNoFocusedWindow) {
			l.logger.Debug("no focused window")
		} else {
			l.logger.Debug("inspector failed, tick treated as neutral", zap.Error(err))
		}
		if l.failStreak == l.cfg.FailureWarnThreshold {
			l.logger.Warn("inspector failing persistently",
				zap.Int("consecutive_failures", l.failStreak))
		}
		fx = l.machine.ObserveNoSignal(now)
	} else {
		l.failStreak = 0
		cls := l.rules.Classify(proc, now)
		fx = l.machine.Observe(proc, cls, now)
		l.tracker.Observe(proc, cls == domain.ClassDistraction)
	}

	if fx.Notice != nil {
		l.logger.Info("blocked app in focus", zap.String("process", fx.Notice.ProcessName))
		l.notifier.Publish(*fx.Notice)
	}

	l.queue(fx)
	l.flush(ctx)
	l.sessionOpen.Store(l.machine.SessionOpen())

	if l.tracker.SummaryDue(now) {
		l.tracker.LogSummary(l.logger, now)
	}
}

func (l *loop) queue(fx TickEffects) {
	l.pendingEvents = append(l.pendingEvents, fx.ClosedEvents...)
	if fx.ClosedSession != nil {
		l.pendingSessions = append(l.pendingSessions, *fx.ClosedSession)
	}
}

// flush attempts to persist everything pending. On failure the records
// stay queued and are retried on the next tick; the operator is warned
// only after repeated consecutive failures.
func (l *loop) flush(ctx context.Context) {
	for len(l.pendingSessions) > 0 {
		cs := l.pendingSessions[0]
		if err := l.store.AppendSession(ctx, cs.Session, cs.Events); err != nil {
			l.writeFailed(err)
			return
		}
		l.pendingSessions = l.pendingSessions[1:]
		l.logger.Info("focus session ended",
			zap.String("session_id", cs.Session.ID.String()),
			zap.Strings("work_apps", cs.Session.WorkApps),
			zap.Int("distraction_attempts", cs.Session.DistractionAttempts))
	}

	for len(l.pendingEvents) > 0 {
		if err := l.store.AppendUsageEvent(ctx, l.pendingEvents[0]); err != nil {
			l.writeFailed(err)
			return
		}
		l.pendingEvents = l.pendingEvents[1:]
	}

	l.writeFailStreak = 0
}

func (l *loop) writeFailed(err error) {
	l.writeFailStreak++
	if l.writeFailStreak >= l.cfg.FailureWarnThreshold {
		l.logger.Warn("persistence failing repeatedly, records retained in memory",
			zap.Int("consecutive_failures", l.writeFailStreak),
			zap.Int("pending_sessions", len(l.pendingSessions)),
			zap.Int("pending_events", len(l.pendingEvents)),
			zap.Error(err))
		return
	}
	l.logger.Debug("persistence write failed, will retry next tick", zap.Error(err))
}

// finalize closes the open event and session and makes a last flush
// attempt before the loop goroutine exits.
func (l *loop) finalize() {
	l.queue(l.machine.Finalize(time.Now()))
	l.sessionOpen.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.flush(ctx)

	if len(l.pendingSessions) > 0 || len(l.pendingEvents) > 0 {
		l.logger.Error("records could not be persisted before shutdown",
			zap.Int("lost_sessions", len(l.pendingSessions)),
			zap.Int("lost_events", len(l.pendingEvents)))
	}
}
