// Package sampler provides point-in-time readings of process CPU/RAM usage
// and GPU utilization/memory. GPU telemetry is best-effort: NVML when the
// driver is present, the nvidia-smi binary otherwise, zeros when neither
// answers. The exec path blocks for up to its timeout, so callers on a
// latency-sensitive path should invoke Snapshot from its own goroutine.
package sampler

import (
	"context"
	"time"
)

// SystemSnapshot is one point-in-time reading of host and GPU resources.
// An all-zero GPU section means no accelerator telemetry was available.
type SystemSnapshot struct {
	CPUUtilization   float64 `json:"cpuUtilization"`
	RAMUsedMiB       float64 `json:"ramUsedMib"`
	GPUUtilization   float64 `json:"gpuUtilization"`
	GPUMemoryUsedMiB float64 `json:"gpuMemoryUsedMib"`
	GPUMemoryFreeMiB float64 `json:"gpuMemoryFreeMib"`
	GPUMemoryPIDMiB  float64 `json:"gpuMemoryPidMib"`
}

// Sampler composes the process and GPU probes for one monitored pid.
type Sampler struct {
	proc *ProcessSampler
	smi  *SMI
	nvml *NVML
}

// Options configures sampler construction.
type Options struct {
	SMIBinary  string
	SMITimeout time.Duration
}

// New creates a Sampler for pid. NVML initialization failure is not an
// error; the sampler silently uses the nvidia-smi path instead.
func New(pid int32, opts Options) (*Sampler, error) {
	proc, err := NewProcessSampler(pid)
	if err != nil {
		return nil, err
	}

	s := &Sampler{
		proc: proc,
		smi:  NewSMI(opts.SMIBinary, opts.SMITimeout),
		nvml: NewNVML(),
	}
	_ = s.nvml.Init()
	return s, nil
}

// GPUAvailable reports whether the NVML fast path is active.
func (s *Sampler) GPUAvailable() bool { return s.nvml.Available() }

// GPUMemoryForPID returns GPU memory in MiB held by pid, or 0.0.
func (s *Sampler) GPUMemoryForPID(ctx context.Context, pid int32) float64 {
	if mib, ok := s.nvml.MemoryForPID(pid); ok {
		return mib
	}
	return s.smi.MemoryForPID(ctx, pid)
}

// GPUGeneralInfo returns aggregate utilization (%), memory used (MiB) and
// memory free (MiB), or all zeros.
func (s *Sampler) GPUGeneralInfo(ctx context.Context) (utilization, memoryUsed, memoryFree float64) {
	if u, used, free, ok := s.nvml.GeneralInfo(); ok {
		return u, used, free
	}
	return s.smi.GeneralInfo(ctx)
}

// Snapshot gathers all readings for the monitored process.
func (s *Sampler) Snapshot(ctx context.Context) SystemSnapshot {
	util, used, free := s.GPUGeneralInfo(ctx)
	return SystemSnapshot{
		CPUUtilization:   s.proc.CPUUtilization(),
		RAMUsedMiB:       s.proc.RAMUsageMiB(),
		GPUUtilization:   util,
		GPUMemoryUsedMiB: used,
		GPUMemoryFreeMiB: free,
		GPUMemoryPIDMiB:  s.GPUMemoryForPID(ctx, s.proc.PID()),
	}
}

func (s *Sampler) Close() {
	s.nvml.Close()
}
