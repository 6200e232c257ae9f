package sampler

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultSMITimeout bounds a single nvidia-smi invocation. A hung or missing
// tool degrades to zero values instead of stalling the request path.
const DefaultSMITimeout = 2 * time.Second

// SMI queries GPU state by invoking the nvidia-smi binary. All methods
// return zero values when the tool is missing, errors out, or produces
// output we cannot parse; CPU-only deployments are a normal operating mode.
type SMI struct {
	binary  string
	timeout time.Duration
}

// NewSMI creates an SMI querier. An empty binary defaults to "nvidia-smi"
// resolved on PATH; a non-positive timeout defaults to DefaultSMITimeout.
func NewSMI(binary string, timeout time.Duration) *SMI {
	if binary == "" {
		binary = "nvidia-smi"
	}
	if timeout <= 0 {
		timeout = DefaultSMITimeout
	}
	return &SMI{binary: binary, timeout: timeout}
}

// MemoryForPID returns the GPU memory in MiB attributed to pid, or 0.0 if
// the tool is unavailable or the pid holds no GPU memory.
func (s *SMI) MemoryForPID(ctx context.Context, pid int32) float64 {
	out, err := s.run(ctx, "--query-compute-apps=pid,used_memory", "--format=csv,noheader")
	if err != nil {
		return 0.0
	}
	return parseComputeApps(out, pid)
}

// GeneralInfo returns aggregate GPU utilization (%), memory used (MiB) and
// memory free (MiB), or all zeros on any failure.
func (s *SMI) GeneralInfo(ctx context.Context) (utilization, memoryUsed, memoryFree float64) {
	out, err := s.run(ctx, "--query-gpu=utilization.gpu,memory.used,memory.free", "--format=csv,noheader")
	if err != nil {
		return 0.0, 0.0, 0.0
	}
	return parseGeneralInfo(out)
}

func (s *SMI) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.binary, args...).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// parseComputeApps scans "pid, used_memory" CSV lines for the given pid.
// Lines that do not parse are skipped, not fatal.
func parseComputeApps(out string, pid int32) float64 {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		rowPID, rest, found := strings.Cut(line, ",")
		if !found {
			continue
		}
		parsed, err := strconv.ParseInt(strings.TrimSpace(rowPID), 10, 32)
		if err != nil || int32(parsed) != pid {
			continue
		}
		return parseUnitValue(rest)
	}
	return 0.0
}

// parseGeneralInfo parses the first line of
// "utilization.gpu, memory.used, memory.free" output, e.g.
// "45 %, 2048 MiB, 6144 MiB".
func parseGeneralInfo(out string) (utilization, memoryUsed, memoryFree float64) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return 0.0, 0.0, 0.0
	}
	fields := strings.Split(lines[0], ",")
	if len(fields) < 3 {
		return 0.0, 0.0, 0.0
	}
	return parseUnitValue(fields[0]), parseUnitValue(fields[1]), parseUnitValue(fields[2])
}

// parseUnitValue extracts the leading numeric token from a value with a
// human-readable unit suffix ("512 MiB", "45 %").
func parseUnitValue(s string) float64 {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0.0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0.0
	}
	return v
}
