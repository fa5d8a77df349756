package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/yourusername/bedrockd/internal/websocket"
)

// PIDFunc reports the currently supervised process id, if any.
type PIDFunc func() (int32, bool)

// Monitor drives the sampler on a fixed interval, pushes populated
// snapshots to the WebSocket hub, and keeps the latest one for the REST
// surface. Snapshots are never persisted.
type Monitor struct {
	sampler  *Sampler
	hub      *websocket.Hub
	pidFn    PIDFunc
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.RWMutex
	latest  *Snapshot
	lastPID int32
}

// NewMonitor creates a monitor polling pidFn every interval.
func NewMonitor(sampler *Sampler, hub *websocket.Hub, pidFn PIDFunc, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{
		sampler:  sampler,
		hub:      hub,
		pidFn:    pidFn,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sampling loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.tick()
			case <-m.stopCh:
				return
			}
		}
	}()
	log.Printf("[Telemetry] Monitor started (interval=%s)", m.interval)
}

// Stop terminates the sampling loop and waits for it to finish.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	log.Printf("[Telemetry] Monitor stopped")
}

// Latest returns the most recent populated snapshot, or nil when the
// monitor has not produced one yet.
func (m *Monitor) Latest() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

func (m *Monitor) tick() {
	pid, ok := m.pidFn()
	if !ok {
		m.mu.Lock()
		if m.lastPID != 0 {
			m.sampler.Reset()
			m.lastPID = 0
			m.latest = nil
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if pid != m.lastPID {
		// New supervised process: discard smoothing history and baselines.
		m.sampler.Reset()
		m.lastPID = pid
	}
	m.mu.Unlock()

	snapshot, ready := m.sampler.Sample(pid)
	if !ready {
		return
	}

	m.mu.Lock()
	m.latest = snapshot
	m.mu.Unlock()

	if m.hub != nil {
		m.hub.BroadcastToRoom(websocket.RoomTelemetry, &websocket.Message{
			Type:      "telemetry_snapshot",
			Payload:   snapshot,
			Timestamp: time.Now(),
		})
	}
}
