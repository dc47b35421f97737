package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"client-delivery-backend/internal/credentials"
	"client-delivery-backend/internal/middleware"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/services"
	"client-delivery-backend/internal/webhooks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Ordered: the first matching sentinel decides the response.
var errorMappings = []errorMapping{
	{services.ErrNotFound, http.StatusNotFound, "not_found"},
	{services.ErrForbidden, http.StatusForbidden, "forbidden"},
	{services.ErrAccessExpired, http.StatusForbidden, "access_expired"},
	{services.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{services.ErrDuplicate, http.StatusConflict, "duplicate"},
	{services.ErrPaymentRequired, http.StatusPaymentRequired, "payment_required"},
	{services.ErrPaymentMismatch, http.StatusBadRequest, "payment_mismatch"},
	{services.ErrSubscriptionRequired, http.StatusPaymentRequired, "subscription_required"},
	{services.ErrAllowanceExceeded, http.StatusForbidden, "allowance_exceeded"},
	{services.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{credentials.ErrDisconnected, http.StatusServiceUnavailable, "service_disconnected"},
	{credentials.ErrRefreshRejected, http.StatusBadGateway, "refresh_rejected"},
	{credentials.ErrInvalidState, http.StatusBadRequest, "invalid_state"},
	{webhooks.ErrMissingSignature, http.StatusUnauthorized, "missing_signature"},
	{webhooks.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{webhooks.ErrMalformedPayload, http.StatusBadRequest, "malformed_payload"},
	{webhooks.ErrNotConfigured, http.StatusServiceUnavailable, "webhook_not_configured"},
}

// writeError converts err into a JSON error response. Unmapped errors are
// logged and answered with a generic 500 so internal detail never leaks.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				logger.Warn("request failed", "path", c.FullPath(), "code", m.code, "error", err)
			}
			c.JSON(m.status, models.ErrorResponse{
				Error:   m.target.Error(),
				Code:    m.code,
				Message: err.Error(),
			})
			return
		}
	}
	logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error: "internal server error",
		Code:  "internal",
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "bad request",
		Code:    "invalid_input",
		Message: message,
	})
}

// actorFromContext reads the caller set by middleware.AuthMiddleware.
func actorFromContext(c *gin.Context) (services.Actor, bool) {
	id, err := uuid.Parse(c.GetString(middleware.UserIDKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Code:    "unauthorized",
			Message: "user id not found",
		})
		return services.Actor{}, false
	}
	return services.Actor{
		ID:    id,
		Email: c.GetString(middleware.EmailKey),
		Admin: c.GetBool(middleware.IsAdminKey),
	}, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
