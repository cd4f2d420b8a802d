//go:build linux

package inspector

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/synapse-app/focusmon/internal/domain"
)

// Foreground resolves the focused window's owning process via the EWMH
// hints exposed by X11: _NET_ACTIVE_WINDOW for the window id, then
// _NET_WM_PID on that window, then the process name for the PID.
func (ins *SystemInspector) Foreground(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW").Output()
	if err != nil {
		return "", fmt.Errorf("xprop query active window: %w", err)
	}

	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", domain.ErrNoFocusedWindow
	}
	windowID := fields[len(fields)-1]
	if windowID == "0x0" {
		return "", domain.ErrNoFocusedWindow
	}

	out, err = exec.CommandContext(ctx, "xprop", "-id", windowID, "_NET_WM_PID").Output()
	if err != nil {
		return "", fmt.Errorf("xprop query window pid: %w", err)
	}
	fields = strings.Fields(string(out))
	if len(fields) == 0 {
		return "", domain.ErrNoFocusedWindow
	}
	pid, err := strconv.ParseInt(fields[len(fields)-1], 10, 32)
	if err != nil {
		return "", fmt.Errorf("%w: window has no pid", domain.ErrNoFocusedWindow)
	}

	name, err := processNameByPID(ctx, int32(pid))
	if err != nil {
		return "", fmt.Errorf("resolve pid %d: %w", pid, err)
	}
	return name, nil
}
