package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"checkin/internal/attendee"
	"checkin/internal/checkin"
	"checkin/internal/navigator"
	"checkin/internal/store"
)

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		verr *attendee.ValidationError
		werr *checkin.RemoteWriteError
		ferr *checkin.FetchError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &werr):
		switch {
		case werr.NotFound():
			c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		case werr.Retryable():
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "record store timed out", "retryable": true})
		case errors.Is(werr, store.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "record store rejected the write", "retryable": false})
		}
	case errors.As(err, &ferr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "record store unavailable", "retryable": true})
	case errors.Is(err, checkin.ErrUnknownKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, navigator.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, navigator.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
