package telemetry

import (
	"errors"
	"math"
	"testing"
	"time"
)

// fakeProcess is a scriptable Process for sampler tests.
type fakeProcess struct {
	cpu      float64
	cpuErr   error
	rss      uint64
	rssErr   error
	children []*fakeProcess
}

func (p *fakeProcess) CPUPercent() (float64, error) {
	return p.cpu, p.cpuErr
}

func (p *fakeProcess) ResidentMemory() (uint64, error) {
	return p.rss, p.rssErr
}

func (p *fakeProcess) Children() ([]Process, error) {
	out := make([]Process, 0, len(p.children))
	for _, c := range p.children {
		out = append(out, c)
	}
	return out, nil
}

// fakeInspector wires fake processes into the Inspector interface.
type fakeInspector struct {
	procs       map[int32]*fakeProcess
	cores       int
	sysCPU      float64
	sysCPUErr   error
	totalMem    uint64
	totalMemErr error
	released    int
}

func (i *fakeInspector) Open(pid int32) (Process, error) {
	p, ok := i.procs[pid]
	if !ok {
		return nil, errors.New("process vanished")
	}
	return p, nil
}

func (i *fakeInspector) LogicalCores() int            { return i.cores }
func (i *fakeInspector) SystemCPUPercent() (float64, error) { return i.sysCPU, i.sysCPUErr }
func (i *fakeInspector) TotalMemoryBytes() (uint64, error)  { return i.totalMem, i.totalMemErr }
func (i *fakeInspector) Release()                     { i.released++ }

func newFakeInspector(root *fakeProcess) *fakeInspector {
	return &fakeInspector{
		procs:    map[int32]*fakeProcess{42: root},
		cores:    1,
		sysCPU:   35,
		totalMem: 8 * 1024 * 1024 * 1024,
	}
}

func TestSamplerWarmUpReturnsNotReady(t *testing.T) {
	root := &fakeProcess{cpu: 50, rss: 100 * 1024 * 1024}
	s := NewSampler(newFakeInspector(root), 5)

	if snap, ok := s.Sample(42); ok {
		t.Fatalf("first sample must report not ready, got %+v", snap)
	}

	snap, ok := s.Sample(42)
	if !ok {
		t.Fatalf("second sample should produce a snapshot")
	}
	if snap.CPUPercent < 0 || snap.CPUPercent > 100 {
		t.Errorf("CPU out of range: %f", snap.CPUPercent)
	}
	if snap.RSSMB != 100 {
		t.Errorf("expected 100 MB RSS, got %d", snap.RSSMB)
	}
	if snap.TotalRAMMB != 8*1024 {
		t.Errorf("expected 8192 MB total RAM, got %d", snap.TotalRAMMB)
	}
	if snap.SystemCPUPercent != 35 {
		t.Errorf("expected system CPU 35, got %f", snap.SystemCPUPercent)
	}
}

func TestSamplerSmoothingWindow(t *testing.T) {
	root := &fakeProcess{rss: 1024 * 1024}
	inspector := newFakeInspector(root)
	s := NewSampler(inspector, 3)

	s.Sample(42) // warm-up

	feed := func(cpu float64) float64 {
		root.cpu = cpu
		snap, ok := s.Sample(42)
		if !ok {
			t.Fatalf("expected snapshot after warm-up")
		}
		return snap.CPUPercent
	}

	feed(10)
	feed(20)
	if got := feed(90); math.Abs(got-40) > 1e-9 {
		t.Fatalf("expected smoothed 40, got %f", got)
	}
	// A fourth reading evicts the oldest entry (10).
	if got := feed(30); math.Abs(got-(20+90+30)/3.0) > 1e-9 {
		t.Fatalf("expected smoothed %.2f, got %f", (20+90+30)/3.0, got)
	}
}

func TestSamplerNormalizationAndClamp(t *testing.T) {
	root := &fakeProcess{cpu: 500, rss: 0}
	inspector := newFakeInspector(root)
	inspector.cores = 2
	s := NewSampler(inspector, 1)

	s.Sample(42) // warm-up

	snap, ok := s.Sample(42)
	if !ok {
		t.Fatalf("expected snapshot")
	}
	// 500% over 2 cores normalizes to 250, clamped to 100.
	if snap.CPUPercent != 100 {
		t.Errorf("expected clamped CPU 100, got %f", snap.CPUPercent)
	}
	if snap.RawCPUSum != 500 {
		t.Errorf("raw sum should stay unnormalized: %f", snap.RawCPUSum)
	}
}

func TestSamplerSumsDescendants(t *testing.T) {
	child := &fakeProcess{cpu: 30, rss: 50 * 1024 * 1024}
	grandchild := &fakeProcess{cpu: 10, rss: 25 * 1024 * 1024}
	child.children = []*fakeProcess{grandchild}
	root := &fakeProcess{cpu: 20, rss: 100 * 1024 * 1024, children: []*fakeProcess{child}}

	s := NewSampler(newFakeInspector(root), 1)
	s.Sample(42) // warm-up

	snap, ok := s.Sample(42)
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if snap.RawCPUSum != 60 {
		t.Errorf("expected CPU sum 60 across the tree, got %f", snap.RawCPUSum)
	}
	if snap.RSSMB != 175 {
		t.Errorf("expected 175 MB across the tree, got %d", snap.RSSMB)
	}
}

func TestSamplerSkipsUnreadableDescendants(t *testing.T) {
	broken := &fakeProcess{cpuErr: errors.New("access denied")}
	root := &fakeProcess{cpu: 40, rss: 10 * 1024 * 1024, children: []*fakeProcess{broken}}

	s := NewSampler(newFakeInspector(root), 1)
	s.Sample(42) // warm-up

	snap, ok := s.Sample(42)
	if !ok {
		t.Fatalf("expected snapshot despite unreadable child")
	}
	if snap.RawCPUSum != 40 {
		t.Errorf("unreadable child should be skipped, got sum %f", snap.RawCPUSum)
	}
}

func TestSamplerVanishedTarget(t *testing.T) {
	s := NewSampler(newFakeInspector(&fakeProcess{}), 1)

	if snap, ok := s.Sample(7); ok {
		t.Fatalf("vanished target should report not ready, got %+v", snap)
	}
}

func TestSamplerMachineReadFailuresDegrade(t *testing.T) {
	root := &fakeProcess{cpu: 10, rss: 200 * 1024 * 1024}
	inspector := newFakeInspector(root)
	inspector.sysCPUErr = errors.New("unsupported")
	inspector.totalMemErr = errors.New("unsupported")

	s := NewSampler(inspector, 1)
	s.Sample(42) // warm-up

	snap, ok := s.Sample(42)
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if snap.SystemCPUPercent != 0 {
		t.Errorf("system CPU should degrade to 0, got %f", snap.SystemCPUPercent)
	}
	if snap.TotalRAMMB != 4096 {
		t.Errorf("total RAM should fall back to the floor, got %d", snap.TotalRAMMB)
	}
}

func TestSamplerResetClearsState(t *testing.T) {
	root := &fakeProcess{cpu: 10}
	inspector := newFakeInspector(root)
	s := NewSampler(inspector, 3)

	s.Sample(42)
	if _, ok := s.Sample(42); !ok {
		t.Fatalf("expected snapshot before reset")
	}

	s.Reset()
	if inspector.released != 1 {
		t.Errorf("reset should release cached inspector state")
	}
	if _, ok := s.Sample(42); ok {
		t.Fatalf("first sample after reset must warm up again")
	}
}

func TestMonitorPublishesLatestSnapshot(t *testing.T) {
	root := &fakeProcess{cpu: 25, rss: 64 * 1024 * 1024}
	s := NewSampler(newFakeInspector(root), 3)

	m := NewMonitor(s, nil, func() (int32, bool) { return 42, true }, 10*time.Millisecond)
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := m.Latest(); snap != nil {
			if snap.PID != 42 {
				t.Fatalf("unexpected PID %d", snap.PID)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("monitor never published a snapshot")
}
