// Package inspector implements the platform process inspector: reading the
// focused window's owning process, enumerating processes, and terminating
// them by identifier. Enumeration and termination use gopsutil on every
// platform; the foreground probe is per-OS (see foreground_*.go).
package inspector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/synapse-app/focusmon/internal/domain"
)

// SystemInspector implements domain.Inspector against the local OS.
type SystemInspector struct {
	logger *zap.Logger
}

// New creates a system inspector.
func New(logger *zap.Logger) *SystemInspector {
	return &SystemInspector{logger: logger}
}

// ListProcesses enumerates running processes, deduplicated by identifier
// and sorted by display name.
func (ins *SystemInspector) ListProcesses(ctx context.Context) ([]domain.InstalledApp, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	seen := make(map[string]struct{}, len(procs))
	apps := make([]domain.InstalledApp, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // process may have exited
		}
		id := strings.ToLower(name)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		apps = append(apps, domain.InstalledApp{
			DisplayName: DisplayName(name),
			ProcessName: id,
		})
	}

	sort.Slice(apps, func(i, j int) bool {
		return apps[i].DisplayName < apps[j].DisplayName
	})
	return apps, nil
}

// Terminate kills every process whose name matches the identifier
// (case-insensitive).
func (ins *SystemInspector) Terminate(ctx context.Context, name string) error {
	target := strings.ToLower(strings.TrimSpace(name))
	if target == "" {
		return fmt.Errorf("%w: empty process name", domain.ErrUnknownProcess)
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return fmt.Errorf("enumerate processes: %w", err)
	}

	killed := 0
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !strings.EqualFold(pname, target) {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			ins.logger.Warn("failed to kill process",
				zap.String("process", target),
				zap.Int32("pid", p.Pid),
				zap.Error(err))
			continue
		}
		ins.logger.Info("killed process",
			zap.String("process", target),
			zap.Int32("pid", p.Pid))
		killed++
	}

	if killed == 0 {
		return fmt.Errorf("%w: %q", domain.ErrUnknownProcess, target)
	}
	return nil
}

// DisplayName turns a raw process identifier into something presentable.
func DisplayName(name string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(name, ".exe"), ".EXE")
	if base == "" {
		return name
	}
	return strings.ToUpper(base[:1]) + base[1:]
}

// processNameByPID resolves a PID to its lowercased process name.
func processNameByPID(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return "", err
	}
	return strings.ToLower(name), nil
}

// Ensure SystemInspector implements domain.Inspector.
var _ domain.Inspector = (*SystemInspector)(nil)
