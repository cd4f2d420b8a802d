//go:build windows

package inspector

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/synapse-app/focusmon/internal/domain"
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
)

// Foreground resolves the focused window's owning process via
// GetForegroundWindow and GetWindowThreadProcessId.
func (ins *SystemInspector) Foreground(ctx context.Context) (string, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return "", domain.ErrNoFocusedWindow
	}

	var pid uint32
	procGetWindowThreadProcessID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return "", fmt.Errorf("%w: window has no pid", domain.ErrNoFocusedWindow)
	}

	name, err := processNameByPID(ctx, int32(pid))
	if err != nil {
		return "", fmt.Errorf("resolve pid %d: %w", pid, err)
	}
	return name, nil
}
