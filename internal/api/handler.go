package api

import (
	"context"
	"log/slog"
	"net/http"

	"keyhub/internal/apperr"
	"keyhub/internal/auth"
	"keyhub/internal/keys"
	"keyhub/internal/metrics"
	"keyhub/internal/model"
	"keyhub/internal/quota"
	"keyhub/internal/summarizer"

	"github.com/gin-gonic/gin"
)

// Store is the persistence surface the handlers touch directly.
type Store interface {
	GetKeyBySecret(ctx context.Context, secret string) (*model.APIKey, error)
	Ping(ctx context.Context) error
}

// Summarizer produces repository summaries.
type Summarizer interface {
	Summarize(ctx context.Context, repo summarizer.Repo) (*summarizer.Result, error)
}

// Handler serves the HTTP API.
type Handler struct {
	store      Store
	keys       *keys.Service
	guard      *quota.Guard
	metrics    *metrics.Aggregator
	summarizer Summarizer
	logger     *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(store Store, keySvc *keys.Service, guard *quota.Guard, agg *metrics.Aggregator, sum Summarizer, logger *slog.Logger) *Handler {
	return &Handler{
		store:      store,
		keys:       keySvc,
		guard:      guard,
		metrics:    agg,
		summarizer: sum,
		logger:     logger.With("component", "api"),
	}
}

type nameRequest struct {
	Name string `json:"name"`
}

type validateRequest struct {
	APIKey string `json:"apiKey"`
}

type summarizeRequest struct {
	GitHubURL string `json:"gitHubUrl"`
}

func (h *Handler) ListKeysHandler(c *gin.Context) {
	views, err := h.keys.ListKeys(c.Request.Context(), auth.OwnerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) CreateKeyHandler(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	key, err := h.keys.CreateKey(c.Request.Context(), auth.OwnerID(c), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, key)
}

func (h *Handler) GetKeyHandler(c *gin.Context) {
	view, err := h.keys.GetKey(c.Request.Context(), c.Param("id"), auth.OwnerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) RevealKeyHandler(c *gin.Context) {
	revealed, err := h.keys.RevealKey(c.Request.Context(), c.Param("id"), auth.OwnerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, revealed)
}

func (h *Handler) RenameKeyHandler(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	view, err := h.keys.RenameKey(c.Request.Context(), c.Param("id"), auth.OwnerID(c), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) DeleteKeyHandler(c *gin.Context) {
	if err := h.keys.DeleteKey(c.Request.Context(), c.Param("id"), auth.OwnerID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "API key deleted successfully"})
}

func (h *Handler) MetricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Compute(c.Request.Context()))
}

// ValidateKeyHandler reports whether a key exists. It consumes no quota.
func (h *Handler) ValidateKeyHandler(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "API key is required"})
		return
	}
	_, err := h.store.GetKeyBySecret(c.Request.Context(), req.APIKey)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"valid": true})
	case apperr.IsNotFound(err):
		c.JSON(http.StatusOK, gin.H{"valid": false})
	default:
		h.writeError(c, err)
	}
}

// SummarizeHandler summarizes a GitHub repository on behalf of an API key.
// Input is checked before the key is charged.
func (h *Handler) SummarizeHandler(c *gin.Context) {
	apiKey := auth.APIKeyFromRequest(c.Request)
	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "API key is required. Please provide it in the X-API-Key header or Authorization header."})
		return
	}

	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in request body"})
		return
	}
	repo, err := summarizer.ParseRepoURL(req.GitHubURL)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var result *summarizer.Result
	err = h.guard.Run(c.Request.Context(), apiKey, func(ctx context.Context, grant *quota.Grant) error {
		var err error
		result, err = h.summarizer.Summarize(ctx, repo)
		return err
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) HealthHandler(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
