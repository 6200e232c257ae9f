package sampler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// NVML reads GPU state through the NVIDIA management library, avoiding a
// process spawn per query. It is optional: when Init fails the sampler falls
// back to the nvidia-smi path.
type NVML struct {
	mu          sync.Mutex
	initialized bool
}

func NewNVML() *NVML { return &NVML{} }

func (n *NVML) Init() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.initialized {
		return nil
	}
	if ret := nvml.Init(); !errors.Is(ret, nvml.SUCCESS) {
		return fmt.Errorf("failed to initialize NVML: %s", nvml.ErrorString(ret))
	}
	n.initialized = true
	return nil
}

func (n *NVML) Available() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.initialized
}

func (n *NVML) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.initialized {
		nvml.Shutdown()
		n.initialized = false
	}
}

// MemoryForPID sums the GPU memory in MiB that pid holds across all devices.
// The second return reports whether the library answered at all.
func (n *NVML) MemoryForPID(pid int32) (float64, bool) {
	if !n.Available() {
		return 0.0, false
	}
	count, ret := nvml.DeviceGetCount()
	if !errors.Is(ret, nvml.SUCCESS) {
		return 0.0, false
	}

	var totalMiB float64
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if !errors.Is(ret, nvml.SUCCESS) {
			continue
		}
		procs, ret := device.GetComputeRunningProcesses()
		if !errors.Is(ret, nvml.SUCCESS) {
			continue
		}
		for _, p := range procs {
			if int32(p.Pid) == pid {
				totalMiB += float64(p.UsedGpuMemory >> 20)
			}
		}
	}
	return totalMiB, true
}

// GeneralInfo returns utilization (%), memory used and free (MiB) for the
// first device, matching what the nvidia-smi query reports.
func (n *NVML) GeneralInfo() (utilization, memoryUsed, memoryFree float64, ok bool) {
	if !n.Available() {
		return 0.0, 0.0, 0.0, false
	}
	device, ret := nvml.DeviceGetHandleByIndex(0)
	if !errors.Is(ret, nvml.SUCCESS) {
		return 0.0, 0.0, 0.0, false
	}

	util, ret := device.GetUtilizationRates()
	if !errors.Is(ret, nvml.SUCCESS) {
		return 0.0, 0.0, 0.0, false
	}
	mem, ret := device.GetMemoryInfo()
	if !errors.Is(ret, nvml.SUCCESS) {
		return 0.0, 0.0, 0.0, false
	}
	return float64(util.Gpu), float64(mem.Used >> 20), float64(mem.Free >> 20), true
}
