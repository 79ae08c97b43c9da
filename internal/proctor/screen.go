package proctor

import (
	"context"
	"time"
)

// ScreenAdapter receives discrete browser/document events (tab visibility,
// fullscreen, devtools heuristic, blocked shortcuts) from the client stream.
// Unlike camera and microphone there is no hardware prompt; the client
// acknowledges listener attachment, which in practice always succeeds, so the
// gate mostly guards against samples arriving outside the adapter lifetime.
type ScreenAdapter struct {
	gate sensorGate
	emit func(ScreenSample)
}

// NewScreenAdapter creates a screen adapter emitting to fn. A zero
// startTimeout uses DefaultStartTimeout.
func NewScreenAdapter(startTimeout time.Duration, fn func(ScreenSample)) *ScreenAdapter {
	return &ScreenAdapter{
		gate: newSensorGate(startTimeout),
		emit: fn,
	}
}

func (a *ScreenAdapter) Source() Source { return SourceScreen }

// Start blocks until the client reports listeners are attached.
func (a *ScreenAdapter) Start(ctx context.Context) error { return a.gate.start(ctx) }

// Stop releases the adapter. Idempotent.
func (a *ScreenAdapter) Stop() { a.gate.stop() }

// Resolve records the client's acquisition report.
func (a *ScreenAdapter) Resolve(status AcquireStatus) { a.gate.Resolve(status) }

// Push ingests one screen event.
func (a *ScreenAdapter) Push(s ScreenSample) {
	if !a.gate.isActive() {
		return
	}
	a.emit(s)
}
