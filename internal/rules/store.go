// Package rules implements the rule store and classification engine.
// The current rule set lives behind an atomic pointer: the monitoring loop
// reads it every tick while rule-edit commands swap in a full replacement,
// so no reader ever observes a half-updated set.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/synapse-app/focusmon/internal/domain"
)

// ruleFile is the on-disk layout (whitelist/blacklist/snoozes).
// Snooze expiries are unix seconds.
type ruleFile struct {
	Whitelist []string         `json:"whitelist"`
	Blacklist []string         `json:"blacklist"`
	Snoozes   map[string]int64 `json:"snoozes,omitempty"`
}

// snapshot is an immutable rule set. All names are normalized lowercase.
type snapshot struct {
	whitelist map[string]struct{}
	blacklist map[string]struct{}
	snoozes   map[string]time.Time
}

// Store holds the rule set and persists it to a JSON file.
type Store struct {
	path   string
	logger *zap.Logger

	cur atomic.Pointer[snapshot]

	// serializes mutations and file writes; readers never take it
	mu sync.Mutex
}

// NewStore creates a store backed by the rules file at path. A missing
// file yields an empty rule set; a corrupt file yields an empty rule set
// with a warning. Neither is fatal.
func NewStore(path string, logger *zap.Logger) *Store {
	s := &Store{path: path, logger: logger}
	s.cur.Store(emptySnapshot())

	if err := s.Reload(); err != nil {
		logger.Warn("rules file unreadable, starting with empty rules",
			zap.String("path", path),
			zap.Error(err))
	}
	return s
}

func emptySnapshot() *snapshot {
	return &snapshot{
		whitelist: map[string]struct{}{},
		blacklist: map[string]struct{}{},
		snoozes:   map[string]time.Time{},
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Classify applies the decision order from the rule engine contract:
// active snooze -> Neutral, blacklist -> Distraction, whitelist -> Work,
// otherwise Neutral.
func (s *Store) Classify(name string, now time.Time) domain.Classification {
	snap := s.cur.Load()
	key := normalize(name)

	if expiry, ok := snap.snoozes[key]; ok && expiry.After(now) {
		return domain.ClassNeutral
	}
	if _, ok := snap.blacklist[key]; ok {
		return domain.ClassDistraction
	}
	if _, ok := snap.whitelist[key]; ok {
		return domain.ClassWork
	}
	return domain.ClassNeutral
}

// Rules returns a copy of the current rule set.
func (s *Store) Rules() domain.AppRuleSet {
	snap := s.cur.Load()

	out := domain.AppRuleSet{
		Whitelist: make([]string, 0, len(snap.whitelist)),
		Blacklist: make([]string, 0, len(snap.blacklist)),
		Snoozes:   make(map[string]time.Time, len(snap.snoozes)),
	}
	for name := range snap.whitelist {
		out.Whitelist = append(out.Whitelist, name)
	}
	for name := range snap.blacklist {
		out.Blacklist = append(out.Blacklist, name)
	}
	sort.Strings(out.Whitelist)
	sort.Strings(out.Blacklist)
	for name, expiry := range snap.snoozes {
		out.Snoozes[name] = expiry
	}
	return out
}

// Replace atomically installs new whitelist and blacklist contents,
// keeping existing snoozes. Overlapping lists are rejected without
// mutating state.
func (s *Store) Replace(whitelist, blacklist []string) error {
	next := emptySnapshot()
	for _, name := range blacklist {
		if key := normalize(name); key != "" {
			next.blacklist[key] = struct{}{}
		}
	}
	for _, name := range whitelist {
		key := normalize(name)
		if key == "" {
			continue
		}
		if _, ok := next.blacklist[key]; ok {
			return fmt.Errorf("%w: %q", domain.ErrOverlappingRules, key)
		}
		next.whitelist[key] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next.snoozes = cloneSnoozes(s.cur.Load().snoozes)
	s.cur.Store(next)
	return s.persistLocked()
}

// Snooze sets or extends the snooze expiry for a process. A later
// existing expiry is kept.
func (s *Store) Snooze(name string, d time.Duration) error {
	key := normalize(name)
	if key == "" {
		return fmt.Errorf("%w: empty process name", domain.ErrUnknownProcess)
	}
	if d <= 0 {
		return fmt.Errorf("snooze duration must be positive, got %s", d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cur.Load()
	next := &snapshot{
		whitelist: old.whitelist,
		blacklist: old.blacklist,
		snoozes:   cloneSnoozes(old.snoozes),
	}
	expiry := time.Now().Add(d)
	if existing, ok := next.snoozes[key]; ok && existing.After(expiry) {
		expiry = existing
	}
	next.snoozes[key] = expiry
	s.cur.Store(next)
	return s.persistLocked()
}

// Reload re-reads the rules file. On parse failure the last-known-good
// snapshot stays installed and the error is returned for logging.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read rules file: %w", err)
	}

	var rf ruleFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("parse rules file: %w", err)
	}

	next := emptySnapshot()
	for _, name := range rf.Blacklist {
		if key := normalize(name); key != "" {
			next.blacklist[key] = struct{}{}
		}
	}
	for _, name := range rf.Whitelist {
		key := normalize(name)
		if key == "" {
			continue
		}
		if _, ok := next.blacklist[key]; ok {
			// Blacklist wins so the invariant holds even for
			// hand-edited files.
			s.logger.Warn("process on both lists, keeping blacklist entry",
				zap.String("process", key))
			continue
		}
		next.whitelist[key] = struct{}{}
	}
	now := time.Now()
	for name, unix := range rf.Snoozes {
		expiry := time.Unix(unix, 0)
		if key := normalize(name); key != "" && expiry.After(now) {
			next.snoozes[key] = expiry
		}
	}

	s.mu.Lock()
	s.cur.Store(next)
	s.mu.Unlock()
	return nil
}

func cloneSnoozes(in map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// persistLocked writes the current snapshot to the rules file atomically
// (temp file + rename). Caller holds s.mu.
func (s *Store) persistLocked() error {
	snap := s.cur.Load()

	rf := ruleFile{
		Whitelist: make([]string, 0, len(snap.whitelist)),
		Blacklist: make([]string, 0, len(snap.blacklist)),
		Snoozes:   make(map[string]int64, len(snap.snoozes)),
	}
	for name := range snap.whitelist {
		rf.Whitelist = append(rf.Whitelist, name)
	}
	for name := range snap.blacklist {
		rf.Blacklist = append(rf.Blacklist, name)
	}
	sort.Strings(rf.Whitelist)
	sort.Strings(rf.Blacklist)
	for name, expiry := range snap.snoozes {
		rf.Snoozes[name] = expiry.Unix()
	}

	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure Store implements domain.RuleEngine.
var _ domain.RuleEngine = (*Store)(nil)
