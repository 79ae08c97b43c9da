package proctor

import (
	"context"
	"time"
)

// MicrophoneAdapter receives periodic volume/frequency samples from the
// client stream and forwards them to a registered callback while active.
type MicrophoneAdapter struct {
	gate sensorGate
	emit func(AudioSample)
}

// NewMicrophoneAdapter creates a microphone adapter emitting to fn. A zero
// startTimeout uses DefaultStartTimeout.
func NewMicrophoneAdapter(startTimeout time.Duration, fn func(AudioSample)) *MicrophoneAdapter {
	return &MicrophoneAdapter{
		gate: newSensorGate(startTimeout),
		emit: fn,
	}
}

func (a *MicrophoneAdapter) Source() Source { return SourceMicrophone }

// Start blocks until the client reports microphone acquisition, within the
// configured timeout.
func (a *MicrophoneAdapter) Start(ctx context.Context) error { return a.gate.start(ctx) }

// Stop releases the adapter. Idempotent.
func (a *MicrophoneAdapter) Stop() { a.gate.stop() }

// Resolve records the client's acquisition report.
func (a *MicrophoneAdapter) Resolve(status AcquireStatus) { a.gate.Resolve(status) }

// Push ingests one audio sample. Samples arriving before Start completes or
// after Stop are dropped.
func (a *MicrophoneAdapter) Push(s AudioSample) {
	if !a.gate.isActive() {
		return
	}
	a.emit(s)
}
