// Package monitor implements the monitoring loop, the session state
// machine, and the command surface built on top of them.
package monitor

import (
	"time"

	"github.com/google/uuid"

	"github.com/synapse-app/focusmon/internal/domain"
)

// ClosedSession is a finalized session bundled with its usage events,
// flushed to storage as one atomic unit.
type ClosedSession struct {
	Session domain.FocusSession
	Events  []domain.AppUsageEvent
}

// TickEffects is what a single observation produced: records to persist
// and at most one block notification.
type TickEffects struct {
	// Notice is set once per contiguous episode of a distracting
	// process holding focus.
	Notice *domain.BlockedNotice

	// ClosedEvents are finalized events recorded outside any session;
	// they are persisted individually.
	ClosedEvents []domain.AppUsageEvent

	// ClosedSession is set when the session ended this tick.
	ClosedSession *ClosedSession
}

// SessionMachine tracks the open focus session and the open usage event.
// It holds no I/O: the loop feeds it observations and persists the
// effects. Exactly one goroutine (the monitoring loop) drives it, which
// is what keeps the at-most-one-open invariants trivial.
type SessionMachine struct {
	idleTimeout time.Duration

	session       *domain.FocusSession
	sessionEvents []domain.AppUsageEvent
	open          *domain.AppUsageEvent

	lastProcess string
	haveProcess bool
	lastWorkAt  time.Time
	// armed is the distracting process already notified for the
	// current episode; cleared on focus change.
	armed string
}

// NewSessionMachine creates a machine that closes the session after
// idleTimeout without a Work classification.
func NewSessionMachine(idleTimeout time.Duration) *SessionMachine {
	return &SessionMachine{idleTimeout: idleTimeout}
}

// Observe processes one tick with a focused process and its
// classification. Identical consecutive readings are idempotent: no new
// event, no duplicate notification.
func (m *SessionMachine) Observe(proc string, cls domain.Classification, now time.Time) TickEffects {
	var fx TickEffects

	changed := !m.haveProcess || proc != m.lastProcess
	if changed {
		m.closeOpenEvent(now, &fx)
		m.armed = ""
	}
	m.lastProcess = proc
	m.haveProcess = true

	if cls == domain.ClassWork {
		m.lastWorkAt = now
		if m.session == nil {
			m.openSession(now)
		}
		m.noteWorkApp(proc)
	}

	if changed {
		m.openEvent(proc, cls, now)
	}

	if cls == domain.ClassDistraction && m.armed != proc {
		m.armed = proc
		if m.session != nil {
			m.session.DistractionAttempts++
		}
		fx.Notice = &domain.BlockedNotice{ProcessName: proc, At: now}
	}

	m.maybeIdleClose(cls, now, &fx)
	return fx
}

// ObserveNoSignal processes a tick on which the inspector produced no
// focused process. The open event stays open (the previous process is
// assumed to still hold focus) but no work credit accrues, so no-signal
// ticks count toward the idle timeout.
func (m *SessionMachine) ObserveNoSignal(now time.Time) TickEffects {
	var fx TickEffects
	m.maybeIdleClose(domain.ClassNeutral, now, &fx)
	return fx
}

// Finalize synchronously closes the open event and session, e.g. on an
// explicit stop or monitoring shutdown.
func (m *SessionMachine) Finalize(now time.Time) TickEffects {
	var fx TickEffects
	if m.session != nil {
		m.closeSession(now, &fx)
	}
	m.closeOpenEvent(now, &fx)
	m.lastProcess = ""
	m.haveProcess = false
	m.armed = ""
	return fx
}

// SessionOpen reports whether a focus session is currently open.
func (m *SessionMachine) SessionOpen() bool {
	return m.session != nil
}

// CurrentSession returns a copy of the open session, or nil.
func (m *SessionMachine) CurrentSession() *domain.FocusSession {
	if m.session == nil {
		return nil
	}
	cp := *m.session
	cp.WorkApps = append([]string(nil), m.session.WorkApps...)
	return &cp
}

func (m *SessionMachine) openSession(now time.Time) {
	m.session = &domain.FocusSession{
		ID:        uuid.New(),
		StartTime: now,
	}
	m.sessionEvents = nil
}

func (m *SessionMachine) noteWorkApp(proc string) {
	for _, app := range m.session.WorkApps {
		if app == proc {
			return
		}
	}
	m.session.WorkApps = append(m.session.WorkApps, proc)
}

func (m *SessionMachine) openEvent(proc string, cls domain.Classification, now time.Time) {
	ev := &domain.AppUsageEvent{
		ID:          uuid.New(),
		ProcessName: proc,
		Status:      cls.Status(),
		StartTime:   now,
	}
	if m.session != nil {
		id := m.session.ID
		ev.SessionID = &id
	}
	m.open = ev
}

// closeOpenEvent stamps the end time and routes the event: events that
// belong to the open session are buffered for the atomic session flush,
// the rest surface as standalone closed events.
func (m *SessionMachine) closeOpenEvent(now time.Time, fx *TickEffects) {
	if m.open == nil {
		return
	}
	ev := *m.open
	m.open = nil

	end := now
	ev.EndTime = &end
	ev.DurationSecs = int64(end.Sub(ev.StartTime) / time.Second)

	if ev.SessionID != nil && m.session != nil && *ev.SessionID == m.session.ID {
		m.sessionEvents = append(m.sessionEvents, ev)
		return
	}
	fx.ClosedEvents = append(fx.ClosedEvents, ev)
}

func (m *SessionMachine) maybeIdleClose(cls domain.Classification, now time.Time, fx *TickEffects) {
	if m.session == nil || cls == domain.ClassWork {
		return
	}
	if now.Sub(m.lastWorkAt) < m.idleTimeout {
		return
	}
	m.closeSession(now, fx)
	// The same process still holds focus; keep recording it outside
	// the session.
	if m.haveProcess && m.open == nil {
		m.openEvent(m.lastProcess, cls, now)
	}
}

func (m *SessionMachine) closeSession(now time.Time, fx *TickEffects) {
	// An open event that belongs to the closing session must be part
	// of the same flush unit.
	if m.open != nil && m.open.SessionID != nil && *m.open.SessionID == m.session.ID {
		m.closeOpenEvent(now, fx)
	}

	end := now
	m.session.EndTime = &end
	fx.ClosedSession = &ClosedSession{
		Session: *m.session,
		Events:  m.sessionEvents,
	}
	m.session = nil
	m.sessionEvents = nil
}
