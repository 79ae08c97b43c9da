package proctor

import (
	"context"
	"time"
)

// CameraAdapter receives analyzed camera frames (face regions + landmarks)
// from the client stream and forwards them to a registered callback while
// active. It has no exam semantics; debouncing happens downstream.
type CameraAdapter struct {
	gate sensorGate
	emit func(FrameSample)
}

// NewCameraAdapter creates a camera adapter emitting to fn. A zero
// startTimeout uses DefaultStartTimeout.
func NewCameraAdapter(startTimeout time.Duration, fn func(FrameSample)) *CameraAdapter {
	return &CameraAdapter{
		gate: newSensorGate(startTimeout),
		emit: fn,
	}
}

func (a *CameraAdapter) Source() Source { return SourceCamera }

// Start blocks until the client reports camera acquisition, within the
// configured timeout.
func (a *CameraAdapter) Start(ctx context.Context) error { return a.gate.start(ctx) }

// Stop releases the adapter. Idempotent.
func (a *CameraAdapter) Stop() { a.gate.stop() }

// Resolve records the client's acquisition report.
func (a *CameraAdapter) Resolve(status AcquireStatus) { a.gate.Resolve(status) }

// Push ingests one frame sample. Samples arriving before Start completes or
// after Stop are dropped.
func (a *CameraAdapter) Push(s FrameSample) {
	if !a.gate.isActive() {
		return
	}
	a.emit(s)
}
