package handler

import (
	"testing"

	"github.com/google/uuid"

	"github.com/pixellab-dev/invigilo/internal/model"
	"github.com/pixellab-dev/invigilo/internal/service"
)

func TestOwnsResult(t *testing.T) {
	examID := uuid.New()
	result := &model.AttemptResult{
		AttemptID:   uuid.New(),
		ExamID:      examID,
		CandidateID: "cand-1",
	}

	cases := []struct {
		name   string
		claims *service.Claims
		want   bool
	}{
		{
			name:   "owning candidate",
			claims: &service.Claims{ExamID: examID.String(), CandidateID: "cand-1"},
			want:   true,
		},
		{
			// A token for the same exam must not unlock another candidate's
			// review: that would expose the correct option ids mid-exam.
			name:   "other candidate, same exam",
			claims: &service.Claims{ExamID: examID.String(), CandidateID: "cand-2"},
			want:   false,
		},
		{
			name:   "same candidate, other exam",
			claims: &service.Claims{ExamID: uuid.New().String(), CandidateID: "cand-1"},
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ownsResult(tc.claims, result); got != tc.want {
				t.Fatalf("ownsResult = %v, want %v", got, tc.want)
			}
		})
	}
}
