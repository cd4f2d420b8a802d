// Package metrics tracks in-memory usage counters for the monitoring
// loop and periodically logs a summary. Counters are owned by the loop
// goroutine; no synchronization is needed.
package metrics

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Tracker accumulates per-tick observations.
type Tracker struct {
	totalChecks  uint64
	blockedCount uint64
	appFrequency map[string]uint64
	lastSummary  time.Time
	interval     time.Duration
}

// NewTracker creates a tracker that considers a summary due every
// interval.
func NewTracker(interval time.Duration) *Tracker {
	return &Tracker{
		appFrequency: make(map[string]uint64),
		lastSummary:  time.Now(),
		interval:     interval,
	}
}

// Observe records one classified tick.
func (t *Tracker) Observe(process string, blocked bool) {
	t.totalChecks++
	if blocked {
		t.blockedCount++
	}
	t.appFrequency[process]++
}

// SummaryDue reports whether the summary interval has elapsed.
func (t *Tracker) SummaryDue(now time.Time) bool {
	return now.Sub(t.lastSummary) >= t.interval
}

// LogSummary logs the counters and the five most frequent apps, then
// resets the summary timer (counters keep accumulating).
func (t *Tracker) LogSummary(logger *zap.Logger, now time.Time) {
	type appCount struct {
		name  string
		count uint64
	}
	top := make([]appCount, 0, len(t.appFrequency))
	for name, count := range t.appFrequency {
		top = append(top, appCount{name, count})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].count > top[j].count })
	if len(top) > 5 {
		top = top[:5]
	}

	fields := []zap.Field{
		zap.Uint64("total_checks", t.totalChecks),
		zap.Uint64("blocked_detections", t.blockedCount),
	}
	for _, ac := range top {
		fields = append(fields, zap.Uint64("app."+ac.name, ac.count))
	}
	logger.Info("usage summary", fields...)

	t.lastSummary = now
}

// Totals returns the accumulated counters (for status output and tests).
func (t *Tracker) Totals() (checks, blocked uint64) {
	return t.totalChecks, t.blockedCount
}
