package sampler

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

const bytesPerMiB = 1024 * 1024

// ProcessSampler reads CPU and memory usage for a single process. CPU
// utilization is interval-based: each call reports usage since the previous
// call on the same handle, so the first reading on a fresh handle may be 0.
type ProcessSampler struct {
	proc *process.Process
}

func NewProcessSampler(pid int32) (*ProcessSampler, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	return &ProcessSampler{proc: proc}, nil
}

// CPUUtilization returns the percentage of CPU consumed by the process since
// the previous call.
func (p *ProcessSampler) CPUUtilization() float64 {
	pct, err := p.proc.Percent(0)
	if err != nil {
		return 0.0
	}
	return pct
}

// RAMUsageMiB returns the resident set size of the process in MiB.
func (p *ProcessSampler) RAMUsageMiB() float64 {
	info, err := p.proc.MemoryInfo()
	if err != nil {
		return 0.0
	}
	return float64(info.RSS) / bytesPerMiB
}

func (p *ProcessSampler) PID() int32 { return p.proc.Pid }
