package telemetry

import (
	"time"
)

// Snapshot is one resource measurement for the supervised process tree.
type Snapshot struct {
	// CPUPercent is the smoothed CPU usage of the process tree, normalized
	// to the logical core count and clamped to [0, 100].
	CPUPercent float64 `json:"cpu_percent"`
	// RawCPUSum is the unsmoothed, unnormalized sum across the tree,
	// reported for diagnostics.
	RawCPUSum float64 `json:"raw_cpu_sum"`
	// SystemCPUPercent is the machine-wide CPU usage.
	SystemCPUPercent float64 `json:"sys_cpu_percent"`
	// RSSMB is the resident memory of the process tree in MB.
	RSSMB int64 `json:"rss_mb"`
	// TotalRAMMB is the machine-wide memory in MB.
	TotalRAMMB int64 `json:"total_ram_mb"`

	PID       int32     `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
}

// Process is one process handle of the inspection capability. CPUPercent
// readings are deltas since the previous call on the same handle, which is
// why the sampler needs a warm-up pass before reporting real data.
type Process interface {
	CPUPercent() (float64, error)
	ResidentMemory() (uint64, error)
	Children() ([]Process, error)
}

// Inspector provides process and machine-wide resource inspection.
type Inspector interface {
	Open(pid int32) (Process, error)
	LogicalCores() int
	SystemCPUPercent() (float64, error)
	TotalMemoryBytes() (uint64, error)
	// Release drops any cached per-process state, forcing fresh baselines.
	Release()
}

// Sampler measures CPU and RAM for a process plus its descendants and keeps
// a bounded rolling history of normalized CPU readings for smoothing. It is
// driven from a single periodic loop and holds no process lifetime.
type Sampler struct {
	inspector Inspector
	cores     int

	history     []float64
	historySize int
	warmed      bool
}

// NewSampler creates a sampler smoothing over historySize readings.
func NewSampler(inspector Inspector, historySize int) *Sampler {
	if historySize < 1 {
		historySize = 1
	}

	cores := inspector.LogicalCores()
	if cores < 1 {
		cores = 1
	}

	// Establish the machine-wide CPU baseline up front, same as the
	// per-process warm-up below.
	_, _ = inspector.SystemCPUPercent()

	return &Sampler{
		inspector:   inspector,
		cores:       cores,
		history:     make([]float64, 0, historySize),
		historySize: historySize,
	}
}

// Sample measures the process tree rooted at pid. The first call after a
// reset only establishes CPU baselines and reports ok=false; subsequent
// calls return real data. A vanished target also reports ok=false, so the
// caller's display simply skips a cycle.
func (s *Sampler) Sample(pid int32) (*Snapshot, bool) {
	root, err := s.inspector.Open(pid)
	if err != nil {
		return nil, false
	}

	procs := s.collectTree(root)

	var cpuSum float64
	var rssBytes uint64
	for _, p := range procs {
		cpu, err := p.CPUPercent()
		if err != nil {
			continue
		}
		cpuSum += cpu
		if rss, err := p.ResidentMemory(); err == nil {
			rssBytes += rss
		}
	}

	if !s.warmed {
		// First pass primes the per-process counters; there is no interval
		// to measure against yet.
		for _, p := range procs {
			_, _ = p.CPUPercent()
		}
		s.warmed = true
		return nil, false
	}

	rssMB := int64(rssBytes / 1024 / 1024)

	normalized := clamp(cpuSum/float64(s.cores), 0, 100)
	s.pushHistory(normalized)

	var sum float64
	for _, v := range s.history {
		sum += v
	}
	smoothed := sum / float64(len(s.history))

	sysCPU, err := s.inspector.SystemCPUPercent()
	if err != nil {
		sysCPU = 0
	}

	var totalRAMMB int64
	if totalBytes, err := s.inspector.TotalMemoryBytes(); err == nil {
		totalRAMMB = int64(totalBytes / 1024 / 1024)
	} else {
		totalRAMMB = max64(4096, rssMB)
	}
	if totalRAMMB < 1 {
		totalRAMMB = 1
	}

	return &Snapshot{
		CPUPercent:       smoothed,
		RawCPUSum:        cpuSum,
		SystemCPUPercent: sysCPU,
		RSSMB:            rssMB,
		TotalRAMMB:       totalRAMMB,
		PID:              pid,
		Timestamp:        time.Now(),
	}, true
}

// Reset clears the warm-up state, the smoothing history, and any cached
// process baselines. Called when the supervised process changes.
func (s *Sampler) Reset() {
	s.warmed = false
	s.history = s.history[:0]
	s.inspector.Release()
}

// collectTree returns the root plus all recursively discovered descendants.
// A process that vanishes mid-enumeration is skipped silently.
func (s *Sampler) collectTree(root Process) []Process {
	procs := []Process{root}
	for i := 0; i < len(procs); i++ {
		children, err := procs[i].Children()
		if err != nil {
			continue
		}
		procs = append(procs, children...)
	}
	return procs
}

func (s *Sampler) pushHistory(value float64) {
	if len(s.history) == s.historySize {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, value)
}

func clamp(value, lo, hi float64) float64 {
	if value > hi {
		return hi
	}
	if value < lo {
		return lo
	}
	return value
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
