package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leadcopy/backend/internal/crm"
	"github.com/leadcopy/backend/internal/profile"
)

const principalContextKey = "leadcopy_principal_id"

var (
	errMissingTokenVerifier = errors.New("token verifier dependency required")
	errMissingAggregator    = errors.New("contact aggregator dependency required")
	errMissingProfileStore  = errors.New("profile store dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenVerifier validates a bearer token and yields the principal id.
type TokenVerifier interface {
	ValidateToken(token string) (string, error)
}

// ContactAggregator runs the resolve/dispatch/paginate pipeline.
type ContactAggregator interface {
	FetchContacts(ctx context.Context, principalID string, limit, offset int) (crm.Page, error)
}

// ProfileWriter persists a principal's CRM selection.
type ProfileWriter interface {
	Upsert(ctx context.Context, principalID, rawProvider, apiKey string, settings map[string]string) error
}

// Dependencies bundles everything the HTTP layer needs.
type Dependencies struct {
	TokenVerifier TokenVerifier
	Aggregator    ContactAggregator
	ProfileStore  ProfileWriter
	Logger        *zap.Logger
}

// NewHTTPHandler wires the gin router. Every aggregation failure is
// converted into the failure envelope here; nothing propagates uncaught.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenVerifier == nil {
		return nil, errMissingTokenVerifier
	}
	if deps.Aggregator == nil {
		return nil, errMissingAggregator
	}
	if deps.ProfileStore == nil {
		return nil, errMissingProfileStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier:   deps.TokenVerifier,
		aggregator: deps.Aggregator,
		profiles:   deps.ProfileStore,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.POST("/contacts/fetch", handler.handleFetchContacts)
	protected.PUT("/profile/crm", handler.handleUpsertProfile)

	return router, nil
}

type httpHandler struct {
	verifier   TokenVerifier
	aggregator ContactAggregator
	profiles   ProfileWriter
	logger     *zap.Logger
}

type fetchRequestPayload struct {
	Limit  *int `json:"limit"`
	Offset *int `json:"offset"`
}

type fetchResponsePayload struct {
	Success    bool          `json:"success"`
	CRMType    string        `json:"crm_type"`
	Contacts   []crm.Contact `json:"contacts"`
	TotalCount int           `json:"total_count"`
	HasMore    bool          `json:"has_more"`
}

type upsertProfilePayload struct {
	CRMType     string            `json:"crm_type"`
	APIKey      string            `json:"api_key"`
	CRMSettings map[string]string `json:"crm_settings"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleFetchContacts(c *gin.Context) {
	principalID := c.GetString(principalContextKey)
	if principalID == "" {
		c.JSON(http.StatusUnauthorized, failureBody("unauthorized", ""))
		return
	}

	// An empty body means default pagination.
	var request fetchRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, failureBody("invalid request body", ""))
		return
	}

	limit := crm.DefaultPageLimit
	if request.Limit != nil {
		limit = *request.Limit
	}
	offset := 0
	if request.Offset != nil {
		offset = *request.Offset
	}

	page, err := h.aggregator.FetchContacts(c.Request.Context(), principalID, limit, offset)
	if err != nil {
		h.respondFetchFailure(c, principalID, err)
		return
	}

	contacts := page.Contacts
	if contacts == nil {
		contacts = []crm.Contact{}
	}
	c.JSON(http.StatusOK, fetchResponsePayload{
		Success:    true,
		CRMType:    page.Provider.String(),
		Contacts:   contacts,
		TotalCount: page.TotalCount,
		HasMore:    page.HasMore,
	})
}

// respondFetchFailure maps the aggregation error taxonomy onto the failure
// envelope. Provider error bodies are echoed as untrusted text only.
func (h *httpHandler) respondFetchFailure(c *gin.Context, principalID string, err error) {
	switch {
	case errors.Is(err, crm.ErrNotConfigured):
		c.JSON(http.StatusBadRequest, failureBody(
			"CRM integration not configured. Set your CRM type and API key in profile settings.", ""))
	case errors.Is(err, crm.ErrUnsupportedProvider):
		h.logger.Error("unsupported provider tag in stored profile",
			zap.String("principal_id", principalID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("unsupported CRM provider", err.Error()))
	case errors.Is(err, crm.ErrProviderUnavailable):
		h.logger.Error("provider unreachable", zap.String("principal_id", principalID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("CRM provider unreachable", err.Error()))
	case errors.Is(err, crm.ErrInvalidPayload):
		h.logger.Error("provider payload mismatch", zap.String("principal_id", principalID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("CRM provider returned an unexpected response", err.Error()))
	default:
		var httpErr *crm.ProviderHTTPError
		if errors.As(err, &httpErr) {
			h.logger.Error("provider request failed",
				zap.String("principal_id", principalID),
				zap.String("provider", httpErr.Provider.String()),
				zap.Int("status", httpErr.StatusCode))
			c.JSON(http.StatusInternalServerError, failureBody("CRM provider request failed", httpErr.Error()))
			return
		}
		h.logger.Error("contact fetch failed", zap.String("principal_id", principalID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("failed to fetch contacts", ""))
	}
}

func (h *httpHandler) handleUpsertProfile(c *gin.Context) {
	principalID := c.GetString(principalContextKey)
	if principalID == "" {
		c.JSON(http.StatusUnauthorized, failureBody("unauthorized", ""))
		return
	}

	var request upsertProfilePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, failureBody("invalid request body", ""))
		return
	}

	err := h.profiles.Upsert(c.Request.Context(), principalID, request.CRMType, request.APIKey, request.CRMSettings)
	if err != nil {
		if errors.Is(err, profile.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, failureBody("invalid CRM profile", err.Error()))
			return
		}
		h.logger.Error("profile upsert failed", zap.String("principal_id", principalID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("failed to save CRM profile", ""))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, failureBody(errInvalidAuthorization.Error(), ""))
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, failureBody(errInvalidAuthorization.Error(), ""))
		return
	}
	principalID, err := h.verifier.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, failureBody("unauthorized", ""))
		return
	}
	c.Set(principalContextKey, principalID)
	c.Next()
}

func failureBody(message, details string) gin.H {
	body := gin.H{
		"error":    message,
		"contacts": []crm.Contact{},
	}
	if details != "" {
		body["details"] = details
	}
	return body
}
