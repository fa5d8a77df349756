package telemetry

import (
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// SystemInspector is the gopsutil-backed Inspector. It caches process
// handles by PID so successive CPUPercent calls measure the interval since
// the previous sample instead of priming a fresh counter every time.
type SystemInspector struct {
	mu      sync.Mutex
	handles map[int32]*process.Process
}

// NewSystemInspector creates an inspector for the local machine.
func NewSystemInspector() *SystemInspector {
	return &SystemInspector{
		handles: make(map[int32]*process.Process),
	}
}

// Open returns a handle for pid, reusing a cached one when available.
func (si *SystemInspector) Open(pid int32) (Process, error) {
	handle, err := si.handle(pid)
	if err != nil {
		return nil, err
	}
	return &systemProcess{inspector: si, proc: handle}, nil
}

// LogicalCores returns the machine's logical core count.
func (si *SystemInspector) LogicalCores() int {
	count, err := cpu.Counts(true)
	if err != nil || count < 1 {
		return 1
	}
	return count
}

// SystemCPUPercent returns machine-wide CPU usage since the previous call.
func (si *SystemInspector) SystemCPUPercent() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

// TotalMemoryBytes returns the machine's total physical memory.
func (si *SystemInspector) TotalMemoryBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

// Release drops all cached handles, so the next samples start from fresh
// CPU baselines.
func (si *SystemInspector) Release() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.handles = make(map[int32]*process.Process)
}

func (si *SystemInspector) handle(pid int32) (*process.Process, error) {
	si.mu.Lock()
	defer si.mu.Unlock()

	if handle, ok := si.handles[pid]; ok {
		return handle, nil
	}

	handle, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	si.handles[pid] = handle
	return handle, nil
}

// systemProcess adapts one gopsutil process handle to the Process interface.
type systemProcess struct {
	inspector *SystemInspector
	proc      *process.Process
}

func (sp *systemProcess) CPUPercent() (float64, error) {
	return sp.proc.Percent(0)
}

func (sp *systemProcess) ResidentMemory() (uint64, error) {
	info, err := sp.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// Children returns the direct children, routed through the handle cache so
// a descendant seen on consecutive samples reports a real CPU interval.
func (sp *systemProcess) Children() ([]Process, error) {
	children, err := sp.proc.Children()
	if err != nil {
		// gopsutil reports an error when there are simply no children.
		return nil, nil
	}

	out := make([]Process, 0, len(children))
	for _, child := range children {
		handle, err := sp.inspector.handle(child.Pid)
		if err != nil {
			continue
		}
		out = append(out, &systemProcess{inspector: sp.inspector, proc: handle})
	}
	return out, nil
}
