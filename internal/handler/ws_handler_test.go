package handler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pixellab-dev/invigilo/internal/model"
	"github.com/pixellab-dev/invigilo/internal/proctor"
	"github.com/pixellab-dev/invigilo/internal/service"
	ws "github.com/pixellab-dev/invigilo/internal/websocket"
)

func pumpExam() *model.ExamDefinition {
	return &model.ExamDefinition{
		Title:  "Pump Exam",
		Status: model.ExamStatusPublished,
		Questions: []model.Question{
			{ID: "q1", Kind: model.AnswerSingle, Points: 5, Options: []model.Option{
				{ID: "q1a", IsCorrect: true},
				{ID: "q1b"},
			}},
		},
	}
}

// The pump is the single delivery path for the graded result: whatever lands
// on live.Graded reaches the client once, and only once.
func TestPumpDeliversGradedOnce(t *testing.T) {
	session, err := proctor.NewSession(pumpExam(), proctor.Config{
		TickInterval: time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer session.Close()
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	live := &service.LiveSession{
		Session: session,
		Events:  make(chan proctor.IntegrityEvent, 4),
		Graded:  make(chan proctor.Result, 1),
	}

	h := NewWSHandler(nil, zerolog.Nop(), nil)
	out := make(chan interface{}, 8)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.pumpServerEvents(live, out, stop)
	}()
	defer func() {
		close(stop)
		<-done
	}()

	_ = session.SetAnswer("q1", "q1a")
	result := session.Submit()
	if result == nil {
		t.Fatal("submit returned nil result")
	}
	live.Graded <- *result

	select {
	case v := <-out:
		push, ok := v.(ws.GradedPush)
		if !ok {
			t.Fatalf("pushed %T, want GradedPush", v)
		}
		if push.Score != 5 || push.MaxScore != 5 {
			t.Fatalf("graded push = %+v", push)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("graded result never reached the outbound channel")
	}

	select {
	case v := <-out:
		t.Fatalf("second outbound push after grading: %+v", v)
	case <-time.After(50 * time.Millisecond):
	}
}
