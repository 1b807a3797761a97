package handler

import (
	"errors"
	"net/http"

	"bedtime-server/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp models.ErrorResponse

	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrBadRequest):
		statusCode = http.StatusBadRequest
		errResp = models.ErrorResponse{Error: "Invalid request", Details: err.Error()}
	case errors.Is(err, models.ErrUnknownProvider):
		statusCode = http.StatusBadRequest
		errResp = models.ErrorResponse{Error: "Unknown AI provider", Details: err.Error()}
	case errors.Is(err, models.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		errResp = models.ErrorResponse{Error: "Authentication required"}
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Error: "Resource not found"}
	case errors.Is(err, models.ErrProviderUnavailable):
		statusCode = http.StatusServiceUnavailable
		errResp = models.ErrorResponse{Error: "AI provider is temporarily unavailable", Details: err.Error()}
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = models.ErrorResponse{Error: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
