package proctor

import (
	"sync"
	"testing"
	"time"
)

func TestMonitorAppendsInOrder(t *testing.T) {
	m := NewMonitor()
	at := time.Now()

	m.Record(IntegrityEvent{Source: SourceCamera, Severity: SeverityViolation, Message: "first", At: at})
	m.Record(IntegrityEvent{Source: SourceScreen, Severity: SeverityNotice, Message: "second", At: at})

	notices := m.Notices()
	if len(notices) != 2 {
		t.Fatalf("expected 2 events, got %d", len(notices))
	}
	if notices[0].Message != "first" || notices[1].Message != "second" {
		t.Fatalf("events out of order: %+v", notices)
	}
}

func TestMonitorFatalLatches(t *testing.T) {
	m := NewMonitor()
	at := time.Now()

	if m.HasFailed() {
		t.Fatal("new monitor reports failed")
	}

	m.Record(IntegrityEvent{Source: SourceMicrophone, Severity: SeverityFatal, Message: "too loud", At: at})
	if !m.HasFailed() {
		t.Fatal("fatal event did not latch")
	}
	if m.FailReason() != "too loud" {
		t.Fatalf("fail reason = %q", m.FailReason())
	}

	// A later fatal must not overwrite the original reason, and later
	// notices must not clear the flag.
	m.Record(IntegrityEvent{Source: SourceCamera, Severity: SeverityFatal, Message: "other", At: at})
	m.Record(IntegrityEvent{Source: SourceCamera, Severity: SeverityNotice, Message: "back", At: at})
	if !m.HasFailed() || m.FailReason() != "too loud" {
		t.Fatalf("latch broken: failed=%v reason=%q", m.HasFailed(), m.FailReason())
	}
}

func TestMonitorSubscribers(t *testing.T) {
	m := NewMonitor()

	var got []IntegrityEvent
	m.Subscribe(func(ev IntegrityEvent) {
		got = append(got, ev)
	})

	m.Record(IntegrityEvent{Source: SourceTimer, Severity: SeverityNotice, Message: "tick"})
	m.Record(IntegrityEvent{Source: SourceTimer, Severity: SeverityNotice, Message: "tock"})

	if len(got) != 2 {
		t.Fatalf("subscriber saw %d events, want 2", len(got))
	}
	if got[0].Message != "tick" || got[1].Message != "tock" {
		t.Fatalf("subscriber events: %+v", got)
	}
}

func TestMonitorConcurrentRecord(t *testing.T) {
	m := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				m.Record(IntegrityEvent{Source: SourceScreen, Severity: SeverityViolation, Message: "x"})
			}
		}()
	}
	wg.Wait()

	if n := len(m.Notices()); n != 200 {
		t.Fatalf("expected 200 events, got %d", n)
	}
}

func TestMonitorNoticesIsASnapshot(t *testing.T) {
	m := NewMonitor()
	m.Record(IntegrityEvent{Message: "one"})

	snap := m.Notices()
	snap[0].Message = "mutated"

	if m.Notices()[0].Message != "one" {
		t.Fatal("snapshot mutation leaked into the monitor")
	}
}
