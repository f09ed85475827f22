package effectors

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemSnapshot is what system.status reports
type SystemSnapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	ProcessRSS    uint64 // bytes
}

// SystemStatus is the observational system.status actuator
type SystemStatus struct {
	sample func(ctx context.Context) (SystemSnapshot, error)
}

// NewSystemStatus reports on the host and this process via gopsutil
func NewSystemStatus() *SystemStatus {
	return &SystemStatus{sample: sampleSystem}
}

func (s *SystemStatus) Invoke(ctx context.Context, _ map[string]any) (string, error) {
	snap, err := s.sample(ctx)
	if err != nil {
		return "", fmt.Errorf("sample system: %w", err)
	}
	return fmt.Sprintf("CPU is at %.0f percent, memory at %.0f percent, and I'm using %d megabytes.",
		snap.CPUPercent, snap.MemoryPercent, snap.ProcessRSS/(1<<20)), nil
}

func sampleSystem(ctx context.Context) (SystemSnapshot, error) {
	var snap SystemSnapshot

	// interval 0 compares against the previous call; good enough for a spoken summary
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return snap, err
	}
	if len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, err
	}
	snap.MemoryPercent = vm.UsedPercent

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return snap, err
	}
	info, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return snap, err
	}
	snap.ProcessRSS = info.RSS
	return snap, nil
}
