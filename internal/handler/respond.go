package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/algoprep-backend/internal/repository"
	"github.com/stemsi/algoprep-backend/internal/response"
	"github.com/stemsi/algoprep-backend/internal/service"
	"github.com/stemsi/algoprep-backend/internal/session"
	"github.com/stemsi/algoprep-backend/internal/validator"
)

// classify maps domain errors to an HTTP status and API error code.
func classify(err error) (int, response.ErrCode, map[string]string) {
	var (
		cfgErr     *session.ConfigError
		valErr     *session.ValidationError
		persistErr *session.PersistenceError
	)

	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, response.ErrValidation, map[string]string{cfgErr.Field: cfgErr.Reason}
	case errors.As(err, &valErr):
		code := response.ErrValidation
		if valErr.Field == "code" {
			code = response.ErrSubmissionTooShort
		}
		return http.StatusBadRequest, code, map[string]string{valErr.Field: valErr.Reason}
	case errors.As(err, &persistErr):
		ids := make([]string, len(persistErr.QuestionIDs))
		for i, id := range persistErr.QuestionIDs {
			ids[i] = id.String()
		}
		return http.StatusServiceUnavailable, response.ErrFinalizePending, map[string]string{"unpersisted": strings.Join(ids, ",")}

	case errors.Is(err, session.ErrEvaluationPending):
		return http.StatusConflict, response.ErrEvaluationPending, nil
	case errors.Is(err, session.ErrAlreadySolved):
		return http.StatusConflict, response.ErrAlreadySolved, nil
	case errors.Is(err, session.ErrSessionNotActive):
		return http.StatusConflict, response.ErrSessionNotActive, nil
	case errors.Is(err, service.ErrActiveSessionExists):
		return http.StatusConflict, response.ErrActiveSessionExists, nil
	case errors.Is(err, session.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrUnknownQuestion, nil
	case errors.Is(err, session.ErrUnknownEvent):
		return http.StatusBadRequest, response.ErrUnknownAction, nil

	case errors.Is(err, service.ErrSessionForbidden):
		return http.StatusForbidden, response.ErrForbidden, nil
	case errors.Is(err, service.ErrNoActiveSession):
		return http.StatusNotFound, response.ErrNoActiveSession, nil
	case errors.Is(err, repository.ErrSessionNotFound), errors.Is(err, session.ErrSessionClosed):
		return http.StatusNotFound, response.ErrSessionNotFound, nil
	case errors.Is(err, repository.ErrQuestionNotFound):
		return http.StatusNotFound, response.ErrQuestionNotFound, nil
	case errors.Is(err, service.ErrDraftNotFound):
		return http.StatusNotFound, response.ErrDraftNotFound, nil
	}
	return http.StatusInternalServerError, response.ErrInternal, nil
}

func respondError(c *gin.Context, err error) {
	status, code, fields := classify(err)
	if fields != nil {
		response.FailWithFields(c, status, code, fields)
		return
	}
	response.Fail(c, status, code)
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(c *gin.Context, dst interface{}) map[string]string {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return validator.Bind(c, dst)
}

// userLocation resolves the X-Timezone header, falling back to def.
func userLocation(c *gin.Context, def *time.Location) (*time.Location, bool) {
	name := c.GetHeader("X-Timezone")
	if name == "" {
		return def, true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, false
	}
	return loc, true
}
