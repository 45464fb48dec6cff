// Package handler exposes the HTTP endpoints. Handlers bind and validate
// input, call one service method, and write the response envelope.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/response"
	"github.com/VasantLong/cgms2025/internal/service"
	"github.com/VasantLong/cgms2025/internal/validator"
)

// fail writes err as an error envelope. Classified service errors carry their
// own code, message and payload; anything else is logged and reported as 500.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		switch service.KindOf(err) {
		case service.KindNotFound:
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case service.KindConflict:
			response.Fail(c, http.StatusConflict, response.ErrConflict)
		default:
			log.Error().Err(err).Str("request_id", response.RequestID(c)).Msg("Request failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	status := statusOf(se.Kind)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", response.RequestID(c)).Msg("Request failed")
		response.Fail(c, status, response.ErrInternal)
		return
	}

	switch {
	case se.Data != nil:
		response.FailWithData(c, status, se.Code, se.Message, se.Data)
	case len(se.Fields) > 0:
		response.FailWithMessageFields(c, status, se.Code, se.Message, se.Fields)
	default:
		response.FailWithMessage(c, status, se.Code, se.Message)
	}
}

func statusOf(k service.Kind) int {
	switch k {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// pathID parses a numeric path parameter. It writes a 400 and returns
// false when the parameter is not a positive integer.
func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id < 1 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// bindJSON binds and validates the body. It writes a 422 with field details
// and returns false on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if fields := validator.Bind(c, dst); fields != nil {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, fields)
		return false
	}
	return true
}

func pageParams(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", c.DefaultQuery("page_size", "10")))
	return page, perPage
}
