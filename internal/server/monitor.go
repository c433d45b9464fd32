package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Monitor tracks coarse runtime counters for the health and stats endpoints.
type Monitor struct {
	mu                sync.RWMutex
	startTime         time.Time
	clientsConnected  int
	clientsTotal      int
	invocationsActive int
	invocationsTotal  int
	invocationsFailed int
}

func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now()}
}

func (m *Monitor) ClientConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientsConnected++
	m.clientsTotal++
}

func (m *Monitor) ClientDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clientsConnected > 0 {
		m.clientsConnected--
	}
}

func (m *Monitor) InvocationStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invocationsActive++
	m.invocationsTotal++
}

func (m *Monitor) InvocationFinished(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.invocationsActive > 0 {
		m.invocationsActive--
	}
	if !success {
		m.invocationsFailed++
	}
}

func (m *Monitor) healthHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := map[string]any{
		"status":    "healthy",
		"uptime":    time.Since(m.startTime).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (m *Monitor) statsHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	perMinute := 0.0
	if uptime.Minutes() > 0 {
		perMinute = float64(m.invocationsTotal) / uptime.Minutes()
	}

	stats := map[string]any{
		"start_time":     m.startTime.Format(time.RFC3339),
		"uptime_seconds": uptime.Seconds(),
		"clients": map[string]any{
			"connected": m.clientsConnected,
			"total":     m.clientsTotal,
		},
		"invocations": map[string]any{
			"active": m.invocationsActive,
			"total":  m.invocationsTotal,
			"failed": m.invocationsFailed,
		},
		"invocations_per_minute": perMinute,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
