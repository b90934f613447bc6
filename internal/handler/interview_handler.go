package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/algoprep-backend/internal/middleware"
	"github.com/stemsi/algoprep-backend/internal/model"
	"github.com/stemsi/algoprep-backend/internal/response"
	"github.com/stemsi/algoprep-backend/internal/service"
	"github.com/stemsi/algoprep-backend/internal/validator"
)

// InterviewHandler handles timed interview sessions.
type InterviewHandler struct {
	sessions *service.SessionService
}

// NewInterviewHandler creates a new InterviewHandler.
func NewInterviewHandler(sessions *service.SessionService) *InterviewHandler {
	return &InterviewHandler{sessions: sessions}
}

// StartInterview godoc
// POST /api/v1/interviews
// Starts a timed session over the given questions.
func (h *InterviewHandler) StartInterview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartInterviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessions.Start(c.Request.Context(), claims.UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"interview": view})
}

// ListInterviews godoc
// GET /api/v1/interviews
// Lists the caller's sessions, newest first.
func (h *InterviewHandler) ListInterviews(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(response.DefaultPerPage)))

	sessions, pagination, err := h.sessions.History(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"interviews": sessions}, pagination)
}

// GetActiveInterview godoc
// GET /api/v1/interviews/active
// Returns the live view of the running session, used after a page reload.
func (h *InterviewHandler) GetActiveInterview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctrl, err := h.sessions.Active(claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	view, err := ctrl.View(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"interview": view})
}

// EndInterview godoc
// POST /api/v1/interviews/:id/end
// Ends the session when confirmed. Repeating the call after a failed
// finalize retries only the unsaved results.
func (h *InterviewHandler) EndInterview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.EndInterviewRequest
	if fields := bindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessions.End(c.Request.Context(), claims.UserID, sessionID, req.Confirmed)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"interview": view})
}

// GetInterviewResults godoc
// GET /api/v1/interviews/:id/results
// Returns the persisted per-question results of a session.
func (h *InterviewHandler) GetInterviewResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	row, results, err := h.sessions.Results(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	if results == nil {
		results = []model.QuestionResult{}
	}
	response.Success(c, http.StatusOK, gin.H{"interview": row, "results": results})
}
