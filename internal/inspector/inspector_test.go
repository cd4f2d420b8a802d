package inspector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/synapse-app/focusmon/internal/domain"
)

func TestListProcesses_ReturnsDeduplicatedApps(t *testing.T) {
	ins := New(zap.NewNop())

	apps, err := ins.ListProcesses(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, apps, "expected at least the test process itself")

	seen := make(map[string]bool)
	for _, app := range apps {
		assert.NotEmpty(t, app.ProcessName)
		assert.NotEmpty(t, app.DisplayName)
		assert.False(t, seen[app.ProcessName], "duplicate process %q", app.ProcessName)
		seen[app.ProcessName] = true
	}
}

func TestTerminate_UnknownProcess(t *testing.T) {
	ins := New(zap.NewNop())

	err := ins.Terminate(context.Background(), "no-such-process-xyzzy")
	assert.ErrorIs(t, err, domain.ErrUnknownProcess)
}

func TestTerminate_EmptyName(t *testing.T) {
	ins := New(zap.NewNop())

	err := ins.Terminate(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrUnknownProcess)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Chrome", DisplayName("chrome.exe"))
	assert.Equal(t, "Code", DisplayName("code"))
	assert.Equal(t, ".exe", DisplayName(".exe"))
}
