package domain

import "errors"

// Sentinel errors for the command surface and inspector. Callers match
// them with errors.Is; implementations wrap them with context.
var (
	// ErrNoFocusedWindow means the inspector found no window holding
	// input focus. The tick is treated as "no signal".
	ErrNoFocusedWindow = errors.New("no focused window")

	// ErrUnknownProcess means a snooze or kill command named a process
	// that could not be found.
	ErrUnknownProcess = errors.New("unknown process")

	// ErrOverlappingRules means a rule update placed the same process on
	// both the whitelist and the blacklist.
	ErrOverlappingRules = errors.New("process on both whitelist and blacklist")

	// ErrAlreadyRunning is returned by start when monitoring is active.
	ErrAlreadyRunning = errors.New("monitoring already running")

	// ErrNotRunning is returned by stop when monitoring is not active.
	ErrNotRunning = errors.New("monitoring not running")
)
