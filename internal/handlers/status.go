package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"client-delivery-backend/internal/credentials"
	"client-delivery-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// CredentialService is the operator surface of a stored OAuth credential.
type CredentialService interface {
	Status(ctx context.Context) (credentials.Status, error)
	Refresh(ctx context.Context) (*models.ServiceToken, error)
	AuthURL(ctx context.Context) (string, error)
	CompleteAuthorization(ctx context.Context, state, code string) (*models.ServiceToken, error)
}

var _ CredentialService = (*credentials.Provider)(nil)

// CredentialsHandler exposes token health for the Frame.io integration.
type CredentialsHandler struct {
	provider    CredentialService
	service     string
	frontendURL string
	logger      *slog.Logger
}

func NewCredentialsHandler(provider CredentialService, service, frontendURL string, logger *slog.Logger) *CredentialsHandler {
	return &CredentialsHandler{
		provider:    provider,
		service:     service,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger.With("component", "credentials_http"),
	}
}

func tokenStatusResponse(st credentials.Status) models.TokenStatusResponse {
	resp := models.TokenStatusResponse{
		Service: st.Service,
		Status:  string(st.State),
	}
	if !st.ExpiresAt.IsZero() {
		exp := st.ExpiresAt
		resp.ExpiresAt = &exp
		if st.Remaining > 0 {
			resp.Remaining = st.Remaining.Round(time.Second).String()
		}
	}
	return resp
}

// GetStatus godoc
// @Summary     Frame.io token health
// @Description One of disconnected, expired, expiring_soon or healthy.
// @Tags        admin
// @Router      /api/v1/admin/frameio/status [get]
func (h *CredentialsHandler) GetStatus(c *gin.Context) {
	st, err := h.provider.Status(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokenStatusResponse(st))
}

func (h *CredentialsHandler) Refresh(c *gin.Context) {
	if _, err := h.provider.Refresh(c.Request.Context()); err != nil {
		writeError(c, h.logger, err)
		return
	}
	st, err := h.provider.Status(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokenStatusResponse(st))
}

// Connect returns the consent URL. With ?redirect=true the browser is sent
// there directly.
func (h *CredentialsHandler) Connect(c *gin.Context) {
	url, err := h.provider.AuthURL(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, url)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": h.service, "url": url})
}

// Callback completes the OAuth code exchange. It is unauthenticated; the
// single-use state parameter ties it to a Connect call.
func (h *CredentialsHandler) Callback(c *gin.Context) {
	if msg := c.Query("error"); msg != "" {
		badRequest(c, msg)
		return
	}
	state, code := c.Query("state"), c.Query("code")
	if state == "" || code == "" {
		badRequest(c, "state and code are required")
		return
	}
	tok, err := h.provider.CompleteAuthorization(c.Request.Context(), state, code)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("service connected", "service", h.service, "expires_at", tok.ExpiresAt)
	if h.frontendURL != "" {
		c.Redirect(http.StatusFound, h.frontendURL+"/admin/integrations?connected="+h.service)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": h.service, "status": "connected"})
}
