// Package forward replicates finalized focus sessions to a remote REST
// sink. Forwarding is strictly best effort: every failure is retried on
// the next cycle and none of them ever touches local persistence.
package forward

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/synapse-app/focusmon/internal/domain"
)

// Credentials are the remote endpoint settings. They come from the
// environment only, never from the config file.
type Credentials struct {
	URL    string `envconfig:"SYNC_URL" required:"true"`
	APIKey string `envconfig:"SYNC_API_KEY" required:"true"`
}

// CredentialsFromEnv reads FOCUSMON_SYNC_URL and FOCUSMON_SYNC_API_KEY.
func CredentialsFromEnv() (Credentials, error) {
	var creds Credentials
	if err := envconfig.Process("focusmon", &creds); err != nil {
		return Credentials{}, fmt.Errorf("sync credentials: %w", err)
	}
	return creds, nil
}

// sessionPayload is the wire shape posted to {base}/focus_sessions.
type sessionPayload struct {
	ID                  string         `json:"id"`
	StartTime           time.Time      `json:"start_time"`
	EndTime             time.Time      `json:"end_time"`
	WorkApps            []string       `json:"work_apps"`
	DistractionAttempts int            `json:"distraction_attempts"`
	Events              []eventPayload `json:"events"`
}

type eventPayload struct {
	ID           string    `json:"id"`
	ProcessName  string    `json:"process_name"`
	Status       string    `json:"status"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	DurationSecs int64     `json:"duration_secs"`
}

// Status describes the most recent push attempt.
type Status struct {
	LastAttempt time.Time
	LastSuccess bool
	LastError   string
	Pushed      int64 // sessions delivered since start
}

// Forwarder pushes closed sessions to the remote sink.
type Forwarder struct {
	client  *resty.Client
	baseURL string
	apiKey  string
	logger  *zap.Logger

	mu     sync.Mutex
	status Status
}

var _ domain.Forwarder = (*Forwarder)(nil)

// New creates a forwarder for the given credentials.
func New(creds Credentials, logger *zap.Logger) *Forwarder {
	client := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Forwarder{
		client:  client,
		baseURL: strings.TrimRight(creds.URL, "/"),
		apiKey:  creds.APIKey,
		logger:  logger,
	}
}

// PushSession delivers one closed session with its events.
func (f *Forwarder) PushSession(ctx context.Context, s domain.FocusSession, events []domain.AppUsageEvent) error {
	if s.EndTime == nil {
		return fmt.Errorf("push session %s: session still open", s.ID)
	}

	payload := sessionPayload{
		ID:                  s.ID.String(),
		StartTime:           s.StartTime.UTC(),
		EndTime:             s.EndTime.UTC(),
		WorkApps:            s.WorkApps,
		DistractionAttempts: s.DistractionAttempts,
		Events:              make([]eventPayload, 0, len(events)),
	}
	for _, e := range events {
		ep := eventPayload{
			ID:           e.ID.String(),
			ProcessName:  e.ProcessName,
			Status:       string(e.Status),
			StartTime:    e.StartTime.UTC(),
			DurationSecs: e.DurationSecs,
		}
		if e.EndTime != nil {
			ep.EndTime = e.EndTime.UTC()
		}
		payload.Events = append(payload.Events, ep)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("apikey", f.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(f.baseURL + "/focus_sessions")

	now := time.Now()
	if err != nil {
		f.recordAttempt(now, false, err.Error())
		return fmt.Errorf("push session %s: %w", s.ID, err)
	}
	if resp.IsError() {
		msg := fmt.Sprintf("remote returned %s: %s", resp.Status(), resp.String())
		f.recordAttempt(now, false, msg)
		return fmt.Errorf("push session %s: %s", s.ID, msg)
	}

	f.recordAttempt(now, true, "")
	return nil
}

// Status returns the most recent push outcome.
func (f *Forwarder) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Forwarder) recordAttempt(at time.Time, ok bool, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.LastAttempt = at
	f.status.LastSuccess = ok
	f.status.LastError = errMsg
	if ok {
		f.status.Pushed++
	}
}

// Runner periodically drains newly closed sessions from the store to
// the forwarder, advancing a cursor past everything delivered.
type Runner struct {
	store    domain.SessionStore
	fwd      domain.Forwarder
	interval time.Duration
	logger   *zap.Logger

	// cursor holds the end time of the newest pushed session. The
	// store query is inclusive, so pushed tracks which sessions at
	// exactly that end time have already been delivered.
	cursor time.Time
	pushed map[uuid.UUID]struct{}
}

// NewRunner creates a runner starting from the given cursor. Sessions
// closed before the cursor are never pushed.
func NewRunner(store domain.SessionStore, fwd domain.Forwarder, interval time.Duration, since time.Time, logger *zap.Logger) *Runner {
	return &Runner{
		store:    store,
		fwd:      fwd,
		interval: interval,
		logger:   logger,
		cursor:   since,
		pushed:   make(map[uuid.UUID]struct{}),
	}
}

// Run blocks until the context is canceled, making one final push
// attempt on the way out.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("sync forwarder started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			r.pushPending(flushCtx)
			cancel()
			r.logger.Info("sync forwarder stopped")
			return

		case <-ticker.C:
			r.pushPending(ctx)
		}
	}
}

// pushPending delivers closed sessions in end-time order, stopping at
// the first failure so the cursor never skips an undelivered session.
func (r *Runner) pushPending(ctx context.Context) {
	sessions, err := r.store.SessionsClosedSince(ctx, r.cursor)
	if err != nil {
		r.logger.Warn("sync: reading closed sessions failed", zap.Error(err))
		return
	}

	for _, s := range sessions {
		if _, done := r.pushed[s.ID]; done {
			continue
		}
		events, err := r.store.EventsForSession(ctx, s.ID)
		if err != nil {
			r.logger.Warn("sync: reading session events failed",
				zap.String("session_id", s.ID.String()), zap.Error(err))
			return
		}
		if err := r.fwd.PushSession(ctx, s, events); err != nil {
			r.logger.Warn("sync: push failed, will retry", zap.Error(err))
			return
		}
		if s.EndTime.After(r.cursor) {
			r.cursor = *s.EndTime
			r.pushed = make(map[uuid.UUID]struct{})
		}
		r.pushed[s.ID] = struct{}{}
		r.logger.Debug("sync: session pushed", zap.String("session_id", s.ID.String()))
	}
}
