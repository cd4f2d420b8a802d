package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Inspector reads the focused window's owning process and enumerates or
// terminates processes. One implementation per OS family.
// Failures are non-fatal: a failed Foreground call is "no signal" for
// that tick.
type Inspector interface {
	// Foreground returns the process identifier of the window that
	// currently holds input focus. Returns ErrNoFocusedWindow when no
	// window has focus.
	Foreground(ctx context.Context) (string, error)

	// ListProcesses enumerates running processes as
	// (display name, process identifier) pairs, deduplicated by name.
	ListProcesses(ctx context.Context) ([]InstalledApp, error)

	// Terminate kills every process matching the identifier.
	// Returns ErrUnknownProcess when nothing matches.
	Terminate(ctx context.Context, name string) error
}

// RuleEngine classifies process identifiers against the current rule set.
// Classify is called every tick by the monitoring loop; mutations swap the
// rule snapshot atomically so readers never observe a half-updated set.
type RuleEngine interface {
	// Classify applies the decision order: active snooze -> Neutral,
	// blacklist -> Distraction, whitelist -> Work, otherwise Neutral.
	Classify(name string, now time.Time) Classification

	// Rules returns a copy of the current rule set.
	Rules() AppRuleSet

	// Replace atomically installs new whitelist and blacklist contents.
	// Overlapping lists are rejected with ErrOverlappingRules.
	Replace(whitelist, blacklist []string) error

	// Snooze suppresses blacklist enforcement for the process until
	// now+d, extending any existing expiry. It never retroactively
	// changes recorded events.
	Snooze(name string, d time.Duration) error
}

// SessionStore is the durable record of closed sessions and usage events.
type SessionStore interface {
	// AppendSession writes a closed session together with its usage
	// events in a single transaction.
	AppendSession(ctx context.Context, s FocusSession, events []AppUsageEvent) error

	// AppendUsageEvent writes one closed event recorded outside any
	// session.
	AppendUsageEvent(ctx context.Context, e AppUsageEvent) error

	// AggregateToday summarizes sessions whose start time falls within
	// the current local day.
	AggregateToday(ctx context.Context) (DailySummary, error)

	// SessionsClosedSince returns sessions finalized at or after t,
	// ordered by end time. Used by the sync forwarder.
	SessionsClosedSince(ctx context.Context, t time.Time) ([]FocusSession, error)

	// EventsForSession returns the usage events recorded for a session.
	EventsForSession(ctx context.Context, id uuid.UUID) ([]AppUsageEvent, error)

	Close() error
}

// Forwarder replicates finalized records to an external sink. Forwarder
// failures must never block or corrupt local persistence.
type Forwarder interface {
	PushSession(ctx context.Context, s FocusSession, events []AppUsageEvent) error
}
