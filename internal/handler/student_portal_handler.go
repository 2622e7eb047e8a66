package handler

import (
	"errors"
	"net/http"

	"github.com/examina/examina-backend/internal/middleware"
	"github.com/examina/examina-backend/internal/repository"
	"github.com/examina/examina-backend/internal/response"
	"github.com/examina/examina-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// StudentPortalHandler handles the student-facing exam portal: lobby, join,
// paper delivery, and reload recovery.
type StudentPortalHandler struct {
	examService    *service.ExamService
	sessionService *service.SessionService
	subRepo        *repository.SubmissionRepository
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	examService *service.ExamService,
	sessionService *service.SessionService,
	subRepo *repository.SubmissionRepository,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		examService:    examService,
		sessionService: sessionService,
		subRepo:        subRepo,
	}
}

func failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrSessionFinished):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, service.ErrNoActiveSession):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// GetLobby godoc
// GET /api/v1/student/exams
// Lists exams the student can currently see, with their progress overlaid.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)

	lobby, err := h.sessionService.GetLobby(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, lobby)
}

// JoinExam godoc
// POST /api/v1/student/exams/:exam_id/join
// Idempotent: joining twice returns the original attempt.
func (h *StudentPortalHandler) JoinExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	row, err := h.sessionService.JoinExam(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, row)
}

// GetPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Serves the redacted paper with a freshly shuffled question order. Requires
// an active attempt.
func (h *StudentPortalHandler) GetPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	if _, err := h.sessionService.VerifyActiveSession(c.Request.Context(), examID, claims.UserID); err != nil {
		failSession(c, err)
		return
	}

	paper, err := h.examService.GetPaper(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) || errors.Is(err, service.ErrNotPublished) {
			response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// GetReloadState godoc
// GET /api/v1/student/exams/:exam_id/state
// Restores a reloading student: autosaved answers plus authoritative
// remaining time.
func (h *StudentPortalHandler) GetReloadState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	if _, err := h.sessionService.VerifyActiveSession(c.Request.Context(), examID, claims.UserID); err != nil {
		failSession(c, err)
		return
	}

	state, err := h.sessionService.GetReloadState(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// GetOwnResult godoc
// GET /api/v1/student/exams/:exam_id/result
// Returns the student's stored submission for a finished exam.
func (h *StudentPortalHandler) GetOwnResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	record, err := h.subRepo.GetByExamAndStudent(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if record == nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, record)
}
