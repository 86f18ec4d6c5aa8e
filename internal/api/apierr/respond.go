package apierr

import (
	"errors"
	"net/http"
	"strconv"

	"course-payments/internal/errdefs"
	"course-payments/internal/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Status maps a workflow error to the HTTP status it is reported with.
func Status(err error) int {
	var perr *errdefs.ProviderError
	switch {
	case errors.Is(err, errdefs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errdefs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errdefs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &perr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond aborts the request with the mapped status. Internal errors are
// logged and hidden from the caller.
func Respond(c *gin.Context, err error) {
	status := Status(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logging.FromContext(c.Request.Context(), zap.L()).Error("request failed", zap.Error(err))
		msg = "Internal error"
	case http.StatusBadGateway:
		logging.FromContext(c.Request.Context(), zap.L()).Warn("payment provider failed", zap.Error(err))
		msg = "Payment provider unavailable, please retry"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// ParamID reads a positive numeric path parameter.
func ParamID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}
