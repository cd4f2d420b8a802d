//go:build !linux && !windows && !darwin

package inspector

import (
	"context"

	"github.com/synapse-app/focusmon/internal/domain"
)

// Foreground has no implementation on this platform; every tick is
// treated as no signal.
func (ins *SystemInspector) Foreground(ctx context.Context) (string, error) {
	return "", domain.ErrNoFocusedWindow
}
