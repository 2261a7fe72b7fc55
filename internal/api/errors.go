package api

import (
	"errors"
	"net/http"

	"keyhub/internal/apperr"
	"keyhub/internal/summarizer"

	"github.com/gin-gonic/gin"
)

const internalErrorMessage = "Internal server error, please try again"

// writeError maps a service error to its HTTP response. Storage and integrity
// failures are logged here and never reach the client in detail.
func (h *Handler) writeError(c *gin.Context, err error) {
	var validationErr *apperr.ValidationError
	var quotaErr *apperr.QuotaExceededError
	var storageErr *apperr.StorageError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":         "API key usage limit exceeded",
			"remainingUses": quotaErr.Remaining,
			"usageCount":    quotaErr.Limit,
		})
	case errors.As(err, &storageErr):
		h.logger.Error("Storage failure", "op", storageErr.Op, "key_id", storageErr.KeyID, "error", storageErr.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalErrorMessage})
	case errors.Is(err, apperr.ErrIntegrity):
		h.logger.Error("Integrity failure", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalErrorMessage})
	default:
		if fe, ok := summarizer.IsFetchError(err); ok {
			h.logger.Warn("README fetch failed", "status", fe.Status, "error", fe)
			c.JSON(fe.Status, gin.H{"error": fe.Message})
			return
		}
		h.logger.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalErrorMessage})
	}
}
