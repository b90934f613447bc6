package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/algoprep-backend/internal/middleware"
	"github.com/stemsi/algoprep-backend/internal/model"
	"github.com/stemsi/algoprep-backend/internal/response"
	"github.com/stemsi/algoprep-backend/internal/service"
)

// PracticeHandler handles free practice: solves, reviews and drafts.
type PracticeHandler struct {
	reviews  *service.ReviewService
	practice *service.PracticeService
	defLoc   *time.Location
}

// NewPracticeHandler creates a new PracticeHandler. defLoc is used when a
// request carries no X-Timezone header.
func NewPracticeHandler(reviews *service.ReviewService, practice *service.PracticeService, defLoc *time.Location) *PracticeHandler {
	return &PracticeHandler{reviews: reviews, practice: practice, defLoc: defLoc}
}

// MarkSolved godoc
// POST /api/v1/practice/questions/:question_id/solve
// Records a solve, reschedules the question's review and awards XP.
func (h *PracticeHandler) MarkSolved(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	loc, ok := userLocation(c, h.defLoc)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidTimezone)
		return
	}

	var req model.SolveRequest
	if fields := bindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.reviews.MarkSolved(c.Request.Context(), claims.UserID, questionID, req, loc)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// GetDueReviews godoc
// GET /api/v1/practice/reviews/due
func (h *PracticeHandler) GetDueReviews(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	due, err := h.reviews.DueReviews(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reviews": due})
}

// GetProgress godoc
// GET /api/v1/practice/progress
func (h *PracticeHandler) GetProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	p, err := h.reviews.Progress(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"progress": p})
}

// GetDraft godoc
// GET /api/v1/practice/questions/:question_id/draft
func (h *PracticeHandler) GetDraft(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	d, err := h.practice.GetDraft(c.Request.Context(), claims.UserID, questionID.String())
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"draft": d})
}
