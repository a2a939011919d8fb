package ratelimit

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// DefaultCheckInterval is how often a paused admission re-reads memory
// usage.
const DefaultCheckInterval = time.Second

// MemoryGate pauses new admissions while heap usage is over a configured
// budget. Admissions are paused, never rejected: a waiting worker
// resumes as soon as usage drops, so memory backpressure stays decoupled
// from domain politeness.
type MemoryGate struct {
	// limitBytes is the heap budget. Zero disables the gate.
	limitBytes uint64

	// checkInterval is how often a paused admission re-reads usage.
	checkInterval time.Duration

	// probe reads current heap usage. Replaced in tests.
	probe func() uint64

	// logger records pauses.
	logger *slog.Logger
}

// MemoryGateOption configures a MemoryGate.
type MemoryGateOption func(*MemoryGate)

// WithMemoryInterval sets how often a paused admission re-reads memory
// usage.
func WithMemoryInterval(d time.Duration) MemoryGateOption {
	return func(m *MemoryGate) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

// WithMemoryProbe replaces the heap usage reader.
func WithMemoryProbe(probe func() uint64) MemoryGateOption {
	return func(m *MemoryGate) {
		if probe != nil {
			m.probe = probe
		}
	}
}

// WithMemoryLogger sets the logger for pause events.
func WithMemoryLogger(logger *slog.Logger) MemoryGateOption {
	return func(m *MemoryGate) {
		m.logger = logger
	}
}

// NewMemoryGate creates a gate with the given heap budget in megabytes.
// A non-positive limit disables the gate.
func NewMemoryGate(limitMB int, opts ...MemoryGateOption) *MemoryGate {
	m := &MemoryGate{
		checkInterval: DefaultCheckInterval,
		probe:         heapAlloc,
	}
	if limitMB > 0 {
		m.limitBytes = uint64(limitMB) * 1024 * 1024
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}

	return m
}

// Wait blocks until heap usage is under the budget or the context is
// cancelled. A nil or disabled gate returns immediately.
func (m *MemoryGate) Wait(ctx context.Context) error {
	if m == nil || m.limitBytes == 0 {
		return nil
	}

	usage := m.probe()
	if usage <= m.limitBytes {
		return nil
	}

	m.logger.Warn("memory limit reached, pausing admissions",
		"usage_mb", usage/(1024*1024),
		"limit_mb", m.limitBytes/(1024*1024),
	)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if m.probe() <= m.limitBytes {
				m.logger.Debug("memory pressure relieved, resuming admissions")
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Usage returns the gate's current view of heap usage in bytes.
func (m *MemoryGate) Usage() uint64 {
	if m == nil {
		return heapAlloc()
	}
	return m.probe()
}

// heapAlloc reads live heap bytes from the runtime.
func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}
