package agent

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type HealthStatus struct {
	hmcConnected    atomic.Bool
	streamConnected atomic.Bool
	lastCaptureAt   atomic.Int64

	mu          sync.Mutex
	hostCapture map[string]time.Time
	unavailable map[string]struct{}
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		hostCapture: make(map[string]time.Time),
		unavailable: make(map[string]struct{}),
	}
}

func (h *HealthStatus) SetHMCConnected(ok bool) {
	h.hmcConnected.Store(ok)
}

func (h *HealthStatus) SetStreamConnected(ok bool) {
	h.streamConnected.Store(ok)
}

func (h *HealthStatus) MarkCapture(hostUUID string, ts time.Time) {
	h.lastCaptureAt.Store(ts.UnixNano())
	h.mu.Lock()
	h.hostCapture[hostUUID] = ts.UTC()
	h.mu.Unlock()
}

// MarkMetricsUnavailable records a host whose last capture returned nothing.
func (h *HealthStatus) MarkMetricsUnavailable(hostUUID string) {
	h.mu.Lock()
	h.unavailable[hostUUID] = struct{}{}
	h.mu.Unlock()
}

func (h *HealthStatus) MarkMetricsAvailable(hostUUID string) {
	h.mu.Lock()
	delete(h.unavailable, hostUUID)
	h.mu.Unlock()
}

func (h *HealthStatus) Healthy() bool {
	return h.hmcConnected.Load() && h.streamConnected.Load()
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"hmc_connected":    h.hmcConnected.Load(),
		"stream_connected": h.streamConnected.Load(),
	}
	if v := h.lastCaptureAt.Load(); v > 0 {
		out["last_capture_at"] = time.Unix(0, v).UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.hostCapture) > 0 {
		hosts := make(map[string]time.Time, len(h.hostCapture))
		for k, v := range h.hostCapture {
			hosts[k] = v
		}
		out["host_last_capture_at"] = hosts
	}
	if len(h.unavailable) > 0 {
		ids := make([]string, 0, len(h.unavailable))
		for id := range h.unavailable {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out["metrics_unavailable"] = ids
	}
	return out
}
