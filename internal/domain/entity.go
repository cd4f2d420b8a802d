// Package domain contains core business entities and interfaces.
// This is the innermost layer - no dependencies on other internal packages.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Classification is the result of matching a process against the rule set.
type Classification int

const (
	// ClassNeutral means the process is neither work nor distraction,
	// or blacklist enforcement is suspended by an active snooze.
	ClassNeutral Classification = iota
	// ClassWork means the process is whitelisted.
	ClassWork
	// ClassDistraction means the process is blacklisted.
	ClassDistraction
)

func (c Classification) String() string {
	switch c {
	case ClassWork:
		return "work"
	case ClassDistraction:
		return "distraction"
	default:
		return "neutral"
	}
}

// EventStatus is the persisted status of an AppUsageEvent.
type EventStatus string

const (
	StatusWork        EventStatus = "work"
	StatusDistraction EventStatus = "distraction"
	StatusNeutral     EventStatus = "neutral"
)

// Status maps a classification to the event status recorded for it.
func (c Classification) Status() EventStatus {
	switch c {
	case ClassWork:
		return StatusWork
	case ClassDistraction:
		return StatusDistraction
	default:
		return StatusNeutral
	}
}

// FocusSession is one interval of sustained work-app usage.
// EndTime is nil while the session is open.
type FocusSession struct {
	ID                  uuid.UUID
	StartTime           time.Time
	EndTime             *time.Time
	WorkApps            []string
	DistractionAttempts int
}

// AppUsageEvent records one contiguous interval of a process holding focus.
// SessionID is nil for events observed outside any focus session.
type AppUsageEvent struct {
	ID           uuid.UUID
	ProcessName  string
	Status       EventStatus
	SessionID    *uuid.UUID
	StartTime    time.Time
	EndTime      *time.Time
	DurationSecs int64
}

// AppRuleSet is a point-in-time view of the whitelist, blacklist, and
// per-process snooze expiries. Blacklist membership excludes whitelist
// membership; snoozes are independent of either list.
type AppRuleSet struct {
	Whitelist []string
	Blacklist []string
	Snoozes   map[string]time.Time
}

// InstalledApp is a (display name, process identifier) pair as reported
// by the platform inspector.
type InstalledApp struct {
	DisplayName string
	ProcessName string
}

// DailySummary aggregates today's committed sessions.
type DailySummary struct {
	TotalWorkSeconds  int64
	TotalDistractions int64
	SessionCount      int64
}

// BlockedNotice is published once per contiguous episode of a distracting
// process holding focus.
type BlockedNotice struct {
	ProcessName string
	At          time.Time
}
