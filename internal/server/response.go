package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/audiolibrelab/micmagic/internal/auth"
	"github.com/audiolibrelab/micmagic/internal/memo"
)

// Body is the API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Body{Success: false, Error: msg})
}

// failErr writes err with the status that matches its kind.
func failErr(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), Body{Success: false, Error: err.Error(), Kind: kindFor(err)})
}

func kindFor(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return "Unauthenticated"
	case errors.Is(err, auth.ErrUserNotFound):
		return "NotFound"
	case errors.Is(err, auth.ErrEmailTaken):
		return "Conflict"
	}
	return memo.Kind(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, memo.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, memo.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, memo.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, memo.ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, memo.ErrInvalidTransition), errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, memo.ErrPersistFailed):
		return http.StatusBadGateway
	case errors.Is(err, memo.ErrShareUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
