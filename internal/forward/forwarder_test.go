package forward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/synapse-app/focusmon/internal/domain"
)

func closedSession(start time.Time, secs int) domain.FocusSession {
	end := start.Add(time.Duration(secs) * time.Second)
	return domain.FocusSession{
		ID:                  uuid.New(),
		StartTime:           start,
		EndTime:             &end,
		WorkApps:            []string{"code.exe"},
		DistractionAttempts: 1,
	}
}

type capture struct {
	mu       sync.Mutex
	apiKeys  []string
	payloads []sessionPayload
}

func newSink(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	cap := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/focus_sessions", r.URL.Path)

		var p sessionPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))

		cap.mu.Lock()
		cap.apiKeys = append(cap.apiKeys, r.Header.Get("apikey"))
		cap.payloads = append(cap.payloads, p)
		cap.mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, cap
}

func TestPushSessionDeliversPayload(t *testing.T) {
	srv, cap := newSink(t, http.StatusCreated)
	fwd := New(Credentials{URL: srv.URL + "/", APIKey: "secret"}, zap.NewNop())

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	sess := closedSession(start, 120)
	sid := sess.ID
	end := start.Add(30 * time.Second)
	events := []domain.AppUsageEvent{{
		ID:           uuid.New(),
		ProcessName:  "code.exe",
		Status:       domain.StatusWork,
		SessionID:    &sid,
		StartTime:    start,
		EndTime:      &end,
		DurationSecs: 30,
	}}

	require.NoError(t, fwd.PushSession(context.Background(), sess, events))

	cap.mu.Lock()
	defer cap.mu.Unlock()
	require.Len(t, cap.payloads, 1)
	assert.Equal(t, []string{"secret"}, cap.apiKeys)

	got := cap.payloads[0]
	assert.Equal(t, sess.ID.String(), got.ID)
	assert.Equal(t, start, got.StartTime)
	assert.Equal(t, []string{"code.exe"}, got.WorkApps)
	assert.Equal(t, 1, got.DistractionAttempts)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "work", got.Events[0].Status)
	assert.Equal(t, int64(30), got.Events[0].DurationSecs)

	st := fwd.Status()
	assert.True(t, st.LastSuccess)
	assert.Equal(t, int64(1), st.Pushed)
}

func TestPushSessionRejectsOpenSession(t *testing.T) {
	srv, cap := newSink(t, http.StatusCreated)
	fwd := New(Credentials{URL: srv.URL, APIKey: "k"}, zap.NewNop())

	err := fwd.PushSession(context.Background(), domain.FocusSession{ID: uuid.New()}, nil)
	require.Error(t, err)
	cap.mu.Lock()
	assert.Empty(t, cap.payloads)
	cap.mu.Unlock()
}

func TestPushSessionReportsRemoteError(t *testing.T) {
	srv, _ := newSink(t, http.StatusUnauthorized)
	fwd := New(Credentials{URL: srv.URL, APIKey: "wrong"}, zap.NewNop())

	err := fwd.PushSession(context.Background(), closedSession(time.Now(), 60), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	st := fwd.Status()
	assert.False(t, st.LastSuccess)
	assert.NotEmpty(t, st.LastError)
	assert.Equal(t, int64(0), st.Pushed)
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("FOCUSMON_SYNC_URL", "https://example.supabase.co/rest/v1")
	t.Setenv("FOCUSMON_SYNC_API_KEY", "anon-key")

	creds, err := CredentialsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://example.supabase.co/rest/v1", creds.URL)
	assert.Equal(t, "anon-key", creds.APIKey)
}

func TestCredentialsFromEnvMissing(t *testing.T) {
	t.Setenv("FOCUSMON_SYNC_URL", "")
	t.Setenv("FOCUSMON_SYNC_API_KEY", "")

	_, err := CredentialsFromEnv()
	assert.Error(t, err)
}

// fakeStore serves a scripted set of closed sessions.
type fakeStore struct {
	mu       sync.Mutex
	sessions []domain.FocusSession
	events   map[uuid.UUID][]domain.AppUsageEvent
}

func (f *fakeStore) AppendSession(ctx context.Context, s domain.FocusSession, events []domain.AppUsageEvent) error {
	return nil
}

func (f *fakeStore) AppendUsageEvent(ctx context.Context, e domain.AppUsageEvent) error { return nil }

func (f *fakeStore) AggregateToday(ctx context.Context) (domain.DailySummary, error) {
	return domain.DailySummary{}, nil
}

func (f *fakeStore) SessionsClosedSince(ctx context.Context, t time.Time) ([]domain.FocusSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.FocusSession
	for _, s := range f.sessions {
		if s.EndTime != nil && !s.EndTime.Before(t) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) EventsForSession(ctx context.Context, id uuid.UUID) ([]domain.AppUsageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[id], nil
}

func (f *fakeStore) Close() error { return nil }

// flakyForwarder fails the first n pushes.
type flakyForwarder struct {
	mu     sync.Mutex
	failN  int
	pushed []uuid.UUID
}

func (f *flakyForwarder) PushSession(ctx context.Context, s domain.FocusSession, events []domain.AppUsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return context.DeadlineExceeded
	}
	f.pushed = append(f.pushed, s.ID)
	return nil
}

func TestRunnerPushesInOrderAndAdvancesCursor(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s1 := closedSession(base, 60)
	s2 := closedSession(base.Add(10*time.Minute), 60)
	store := &fakeStore{
		sessions: []domain.FocusSession{s1, s2},
		events:   map[uuid.UUID][]domain.AppUsageEvent{},
	}
	fwd := &flakyForwarder{}
	r := NewRunner(store, fwd, time.Minute, base, zap.NewNop())

	r.pushPending(context.Background())
	assert.Equal(t, []uuid.UUID{s1.ID, s2.ID}, fwd.pushed)

	// an advanced cursor means nothing is pushed twice
	r.pushPending(context.Background())
	assert.Len(t, fwd.pushed, 2)
}

func TestRunnerPicksUpLateCommitWithSameEndTime(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s1 := closedSession(base, 60)
	s2 := closedSession(base, 60)
	store := &fakeStore{
		sessions: []domain.FocusSession{s1, s2},
		events:   map[uuid.UUID][]domain.AppUsageEvent{},
	}
	fwd := &flakyForwarder{}
	r := NewRunner(store, fwd, time.Minute, base, zap.NewNop())

	r.pushPending(context.Background())
	assert.Equal(t, []uuid.UUID{s1.ID, s2.ID}, fwd.pushed)

	// a session committed later but closed at the same second must
	// still be delivered, without re-pushing its siblings
	s3 := closedSession(base, 60)
	store.mu.Lock()
	store.sessions = append(store.sessions, s3)
	store.mu.Unlock()

	r.pushPending(context.Background())
	assert.Equal(t, []uuid.UUID{s1.ID, s2.ID, s3.ID}, fwd.pushed)
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s1 := closedSession(base, 60)
	s2 := closedSession(base.Add(10*time.Minute), 60)
	store := &fakeStore{
		sessions: []domain.FocusSession{s1, s2},
		events:   map[uuid.UUID][]domain.AppUsageEvent{},
	}
	fwd := &flakyForwarder{failN: 1}
	r := NewRunner(store, fwd, time.Minute, base, zap.NewNop())

	r.pushPending(context.Background())
	assert.Empty(t, fwd.pushed, "cursor must not skip an undelivered session")

	r.pushPending(context.Background())
	assert.Equal(t, []uuid.UUID{s1.ID, s2.ID}, fwd.pushed)
}
