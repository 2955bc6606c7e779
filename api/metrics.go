package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertRevocationSpike AlertType = "revocation_spike"
	AlertRepeatedClear   AlertType = "repeated_clear"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// windowEntry is one recorded event carrying n units of weight.
type windowEntry struct {
	at time.Time
	n  int
}

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu sync.Mutex

	// Sliding window of revoked sessions, weighted by how many sessions
	// each call removed.
	revocations         []windowEntry
	revocationWindow    time.Duration
	revocationThreshold int

	// Sliding window for full-table clears.
	clears         []windowEntry
	clearWindow    time.Duration
	clearThreshold int

	now     func() time.Time
	alertFn AlertFunc
}

const (
	defaultRevocationWindow    = 1 * time.Minute
	defaultRevocationThreshold = 100
	defaultClearWindow         = 1 * time.Hour
	defaultClearThreshold      = 3
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		revocationWindow:    defaultRevocationWindow,
		revocationThreshold: defaultRevocationThreshold,
		clearWindow:         defaultClearWindow,
		clearThreshold:      defaultClearThreshold,
		now:                 time.Now,
		alertFn:             alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
// n is the number of sessions the event removed; clears count once each.
func (m *metricsCollector) recordEvent(event AuditEvent, n int) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditSessionDestroyed, AuditUserSessionsRevoked:
		m.record(&m.revocations, n, m.revocationWindow, m.revocationThreshold,
			AlertRevocationSpike, "revoked session count exceeds threshold")
	case AuditSessionsCleared:
		m.record(&m.clears, 1, m.clearWindow, m.clearThreshold,
			AlertRepeatedClear, "session table cleared repeatedly")
	}
}

func (m *metricsCollector) record(events *[]windowEntry, n int, window time.Duration, threshold int, alert AlertType, msg string) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	*events = append(*events, windowEntry{at: now, n: n})
	*events = trimWindow(*events, now, window)

	if total := windowTotal(*events); total >= threshold {
		m.alertFn(AlertEvent{
			Type:      alert,
			Message:   msg,
			Count:     total,
			Threshold: threshold,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		*events = (*events)[:0]
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(entries []windowEntry, now time.Time, window time.Duration) []windowEntry {
	cutoff := now.Add(-window)
	start := 0
	for start < len(entries) && entries[start].at.Before(cutoff) {
		start++
	}
	return entries[start:]
}

func windowTotal(entries []windowEntry) int {
	total := 0
	for _, e := range entries {
		total += e.n
	}
	return total
}
