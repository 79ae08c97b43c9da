package proctor

import "sync"

// Monitor aggregates debounced signals into a session's unified integrity
// log. Events are appended in arrival order and never mutated; the failed
// flag latches on the first fatal event and stays set for the session's
// lifetime. Surfacing events to the user is the caller's concern — the
// monitor only guarantees each qualifying transition is recorded exactly
// once, via the subscribers registered before recording begins.
type Monitor struct {
	mu          sync.Mutex
	events      []IntegrityEvent
	failed      bool
	failReason  string
	subscribers []func(IntegrityEvent)
}

// NewMonitor creates an empty integrity monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Subscribe registers fn to be called, under the monitor's lock, for every
// recorded event. Register subscribers before adapters start so no event is
// missed.
func (m *Monitor) Subscribe(fn func(IntegrityEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Record appends ev to the log and latches the failed flag on fatal events.
func (m *Monitor) Record(ev IntegrityEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, ev)
	if ev.Severity == SeverityFatal && !m.failed {
		m.failed = true
		m.failReason = ev.Message
	}

	for _, fn := range m.subscribers {
		fn(ev)
	}
}

// Notices returns a read-only snapshot of the event log.
func (m *Monitor) Notices() []IntegrityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]IntegrityEvent, len(m.events))
	copy(out, m.events)
	return out
}

// HasFailed reports whether any fatal event has been latched.
func (m *Monitor) HasFailed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

// FailReason returns the message of the first fatal event, or "" if none.
func (m *Monitor) FailReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failReason
}
