package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/mind-weather/internal/common"
	"github.com/suPer8Hu/mind-weather/internal/httpapi/middleware"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

type errClass int

const (
	// internal failures (storage) become 500
	classInternal errClass = iota
	// failures of a called service become 502
	classUpstream
)

// writeErr translates a domain error into a response. Errors that match no
// sentinel are reported by class.
func (h *Handler) writeErr(c *gin.Context, err error, class errClass) {
	switch {
	case errors.Is(err, reflection.ErrNotFound):
		fail(c, http.StatusNotFound, 40004, "not found")
	case errors.Is(err, reflection.ErrNoThoughts):
		common.FailWith(c, http.StatusConflict, 40902, "session has no thoughts", gin.H{"redirect": "capture"})
	case errors.Is(err, reflection.ErrInvalidTransition), errors.Is(err, reflection.ErrStale):
		fail(c, http.StatusConflict, 40901, err.Error())
	case errors.Is(err, reflection.ErrDraftIndex):
		fail(c, http.StatusBadRequest, 40002, err.Error())
	case errors.Is(err, reflection.ErrInvalidOption),
		errors.Is(err, reflection.ErrInvalidWeather),
		errors.Is(err, reflection.ErrAnswerRequired),
		errors.Is(err, reflection.ErrCategoryWithoutTheme):
		fail(c, http.StatusBadRequest, 40001, err.Error())
	case errors.Is(err, reflection.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, 50301, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the body
		c.Status(499)
	default:
		lvl := zerolog.ErrorLevel
		status, code, msg := http.StatusInternalServerError, 50001, "internal error"
		if class == classUpstream || errors.Is(err, context.DeadlineExceeded) {
			lvl = zerolog.WarnLevel
			status, code, msg = http.StatusBadGateway, 50201, "upstream service failed"
		}
		h.Logger.WithLevel(lvl).Err(err).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("route", c.FullPath()).
			Msg("request failed")
		fail(c, status, code, msg)
	}
}
