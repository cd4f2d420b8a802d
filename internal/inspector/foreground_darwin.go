//go:build darwin

package inspector

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/synapse-app/focusmon/internal/domain"
)

// Foreground asks System Events for the frontmost application process.
// Requires accessibility/automation permission; a denial surfaces as a
// non-fatal error and the tick is treated as no signal.
func (ins *SystemInspector) Foreground(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "osascript", "-e",
		`tell application "System Events" to get name of first application process whose frontmost is true`,
	).Output()
	if err != nil {
		return "", fmt.Errorf("osascript frontmost query: %w", err)
	}

	name := strings.ToLower(strings.TrimSpace(string(out)))
	if name == "" {
		return "", domain.ErrNoFocusedWindow
	}
	return name, nil
}
