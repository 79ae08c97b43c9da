package proctor

import (
	"context"
	"sync"
	"time"
)

// DefaultStartTimeout bounds how long an adapter waits for the client to
// acknowledge hardware acquisition before giving up with ErrDeviceUnavailable.
const DefaultStartTimeout = 10 * time.Second

// Adapter is a wrapper around one sensor resource. Start blocks until the
// resource is acquired (or fails with ErrPermissionDenied /
// ErrDeviceUnavailable); Stop releases it and is safe to call any number of
// times, in any state.
type Adapter interface {
	Source() Source
	Start(ctx context.Context) error
	Stop()
}

// AcquireStatus is the client's report of a sensor acquisition attempt.
type AcquireStatus string

const (
	AcquireReady       AcquireStatus = "ready"
	AcquireDenied      AcquireStatus = "denied"
	AcquireUnavailable AcquireStatus = "unavailable"
)

// sensorGate holds the shared start/ack/stop machinery for sample-fed
// adapters (camera, microphone, screen). The browser client owns the actual
// hardware; the gate models acquisition as a bounded wait for the client's
// status report, delivered via Resolve.
type sensorGate struct {
	mu           sync.Mutex
	active       bool
	stopped      bool
	resolved     bool
	ack          chan error
	stopOnce     sync.Once
	startTimeout time.Duration
}

func newSensorGate(startTimeout time.Duration) sensorGate {
	if startTimeout <= 0 {
		startTimeout = DefaultStartTimeout
	}
	return sensorGate{
		ack:          make(chan error, 1),
		startTimeout: startTimeout,
	}
}

// Resolve delivers the client's acquisition report. Only the first call has
// any effect; late or duplicate reports are dropped.
func (g *sensorGate) Resolve(status AcquireStatus) {
	g.mu.Lock()
	if g.resolved || g.stopped {
		g.mu.Unlock()
		return
	}
	g.resolved = true
	g.mu.Unlock()

	switch status {
	case AcquireReady:
		g.ack <- nil
	case AcquireDenied:
		g.ack <- ErrPermissionDenied
	default:
		g.ack <- ErrDeviceUnavailable
	}
}

// start waits for the acquisition report with a bounded timeout. An
// indefinite hang on the client side is reported as ErrDeviceUnavailable.
func (g *sensorGate) start(ctx context.Context) error {
	timer := time.NewTimer(g.startTimeout)
	defer timer.Stop()

	select {
	case err := <-g.ack:
		if err != nil {
			return err
		}
	case <-timer.C:
		return ErrDeviceUnavailable
	case <-ctx.Done():
		return ErrDeviceUnavailable
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return ErrDeviceUnavailable
	}
	g.active = true
	return nil
}

// stop deactivates the gate. Idempotent, safe even if start never completed.
func (g *sensorGate) stop() {
	g.stopOnce.Do(func() {
		g.mu.Lock()
		g.active = false
		g.stopped = true
		g.mu.Unlock()
	})
}

// isActive reports whether samples should be accepted.
func (g *sensorGate) isActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
