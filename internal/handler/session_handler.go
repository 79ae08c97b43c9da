package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pixellab-dev/invigilo/internal/middleware"
	"github.com/pixellab-dev/invigilo/internal/model"
	"github.com/pixellab-dev/invigilo/internal/response"
	"github.com/pixellab-dev/invigilo/internal/service"
	"github.com/pixellab-dev/invigilo/internal/validator"
)

// SessionHandler handles the candidate session endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// StartSession godoc
// POST /api/v1/exams/:exam_id/sessions
// Starts (or resumes) a candidate's session for a published exam. Returns
// the session token and the sanitized paper. Unauthenticated apart from the
// exam access code — this is the entry point that mints the session JWT.
func (h *SessionHandler) StartSession(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	started, err := h.sessionService.Start(c.Request.Context(), examID, &req)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrExamNotPublished):
			response.Fail(c, http.StatusConflict, response.ErrExamNotPublished)
		case errors.Is(err, service.ErrInvalidAccessCode):
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidAccessCode)
		case errors.Is(err, service.ErrAttemptCompleted):
			response.Fail(c, http.StatusConflict, response.ErrSessionScored)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, started)
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
// Returns a snapshot of the caller's live session: phase, remaining time,
// current answers and the integrity notice log. Used to rebuild client state
// after a reload.
func (h *SessionHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	live, err := h.sessionService.Get(sessionID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": live.Session.Snapshot()})
}

// SubmitSession godoc
// POST /api/v1/sessions/:session_id/submit
// Finishes the caller's session. Idempotent; returns the final result.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	live, err := h.sessionService.Get(sessionID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	result := h.sessionService.Submit(live)
	if result == nil {
		response.Fail(c, http.StatusConflict, response.ErrSessionNotRunning)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetSessionResult godoc
// GET /api/v1/sessions/:session_id/result
// Returns the persisted result and review for the caller's finished attempt.
func (h *SessionHandler) GetSessionResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Query("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.sessionService.Result(c.Request.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows), errors.Is(err, service.ErrSessionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	if !ownsResult(claims, result) {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// ownsResult guards the review payload. The token must match the attempt on
// both exam and candidate: review rows carry the correct option ids, so an
// exam-level check alone would hand any candidate of that exam the answer
// key through another attempt's id.
func ownsResult(claims *service.Claims, result *model.AttemptResult) bool {
	return claims.ExamID == result.ExamID.String() &&
		claims.CandidateID == result.CandidateID
}
