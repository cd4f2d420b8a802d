// Package storage implements the durable record of focus sessions and app
// usage events on an embedded SQLite database. The database is opened
// through the SQLCipher driver; passing a key encrypts the file at rest,
// an empty key yields a plain SQLite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mutecomm/go-sqlcipher/v4" // ensure sqlcipher driver is registered
	"go.uber.org/zap"

	"github.com/synapse-app/focusmon/internal/domain"
)

// Store implements domain.SessionStore on SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens (or creates) the database at path. keyHex, when non-empty,
// is the SQLCipher passphrase in hex. Use ":memory:" for tests.
func Open(path, keyHex string, logger *zap.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	dsn := path + "?_busy_timeout=5000"
	if keyHex != "" {
		dsn = fmt.Sprintf("%s&_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dsn, keyHex)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps the in-memory database coherent and
	// serializes writers against readers for file databases.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS focus_sessions (
		id TEXT PRIMARY KEY,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		work_apps TEXT NOT NULL DEFAULT '',
		distraction_attempts INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS app_usage_events (
		id TEXT PRIMARY KEY,
		process_name TEXT NOT NULL,
		status TEXT NOT NULL,
		session_id TEXT REFERENCES focus_sessions(id),
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		duration_secs INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_start ON focus_sessions(start_time);
	CREATE INDEX IF NOT EXISTS idx_sessions_end ON focus_sessions(end_time);
	CREATE INDEX IF NOT EXISTS idx_events_session ON app_usage_events(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendSession writes a closed session and its usage events in a single
// transaction. Either everything commits or nothing does.
func (s *Store) AppendSession(ctx context.Context, sess domain.FocusSession, events []domain.AppUsageEvent) error {
	if sess.EndTime == nil {
		return fmt.Errorf("refusing to persist open session %s", sess.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO focus_sessions (id, start_time, end_time, work_apps, distraction_attempts)
		VALUES (?, ?, ?, ?, ?)`,
		sess.ID.String(),
		sess.StartTime.Unix(),
		sess.EndTime.Unix(),
		strings.Join(sess.WorkApps, ","),
		sess.DistractionAttempts,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, ev := range events {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AppendUsageEvent writes one closed event recorded outside any session.
func (s *Store) AppendUsageEvent(ctx context.Context, ev domain.AppUsageEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, tx execer, ev domain.AppUsageEvent) error {
	if ev.EndTime == nil {
		return fmt.Errorf("refusing to persist open event %s", ev.ID)
	}
	var sessionID any
	if ev.SessionID != nil {
		sessionID = ev.SessionID.String()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO app_usage_events (id, process_name, status, session_id, start_time, end_time, duration_secs)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID.String(),
		ev.ProcessName,
		string(ev.Status),
		sessionID,
		ev.StartTime.Unix(),
		ev.EndTime.Unix(),
		ev.DurationSecs,
	)
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

// AggregateToday summarizes sessions that started within the current
// local day. Only committed rows are visible.
func (s *Store) AggregateToday(ctx context.Context) (domain.DailySummary, error) {
	start, end := todayBounds(time.Now())

	var summary domain.DailySummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(end_time - start_time), 0),
			COALESCE(SUM(distraction_attempts), 0),
			COUNT(*)
		FROM focus_sessions
		WHERE start_time >= ? AND start_time < ?`,
		start, end,
	).Scan(&summary.TotalWorkSeconds, &summary.TotalDistractions, &summary.SessionCount)
	if err != nil {
		return domain.DailySummary{}, fmt.Errorf("aggregate today: %w", err)
	}
	return summary, nil
}

// todayBounds returns (start, end) unix timestamps of the local day
// containing now.
func todayBounds(now time.Time) (int64, int64) {
	year, month, day := now.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, now.Location()).Unix()
	return start, start + 86400
}

// SessionsClosedSince returns sessions whose end time is at or after t,
// ordered by end time.
func (s *Store) SessionsClosedSince(ctx context.Context, t time.Time) ([]domain.FocusSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_time, end_time, work_apps, distraction_attempts
		FROM focus_sessions
		WHERE end_time >= ?
		ORDER BY end_time ASC`,
		t.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.FocusSession
	for rows.Next() {
		var (
			id        string
			startUnix int64
			endUnix   int64
			workApps  string
			attempts  int
		)
		if err := rows.Scan(&id, &startUnix, &endUnix, &workApps, &attempts); err != nil {
			return nil, err
		}
		sessID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("corrupt session id %q: %w", id, err)
		}
		end := time.Unix(endUnix, 0)
		sessions = append(sessions, domain.FocusSession{
			ID:                  sessID,
			StartTime:           time.Unix(startUnix, 0),
			EndTime:             &end,
			WorkApps:            splitWorkApps(workApps),
			DistractionAttempts: attempts,
		})
	}
	return sessions, rows.Err()
}

// EventsForSession returns the usage events recorded for a session,
// ordered by start time.
func (s *Store) EventsForSession(ctx context.Context, id uuid.UUID) ([]domain.AppUsageEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, process_name, status, start_time, end_time, duration_secs
		FROM app_usage_events
		WHERE session_id = ?
		ORDER BY start_time ASC`,
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.AppUsageEvent
	for rows.Next() {
		var (
			evID      string
			name      string
			status    string
			startUnix int64
			endUnix   int64
			duration  int64
		)
		if err := rows.Scan(&evID, &name, &status, &startUnix, &endUnix, &duration); err != nil {
			return nil, err
		}
		eventID, err := uuid.Parse(evID)
		if err != nil {
			return nil, fmt.Errorf("corrupt event id %q: %w", evID, err)
		}
		sessID := id
		end := time.Unix(endUnix, 0)
		events = append(events, domain.AppUsageEvent{
			ID:           eventID,
			ProcessName:  name,
			Status:       domain.EventStatus(status),
			SessionID:    &sessID,
			StartTime:    time.Unix(startUnix, 0),
			EndTime:      &end,
			DurationSecs: duration,
		})
	}
	return events, rows.Err()
}

func splitWorkApps(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure Store implements domain.SessionStore.
var _ domain.SessionStore = (*Store)(nil)
