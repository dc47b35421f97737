package handlers

import (
	"net/http"

	"client-delivery-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// StartRevisionCheckout godoc
// @Summary     Buy a revision
// @Description Opens a payment session. The project status only changes once the
// @Description payment webhook confirms the charge.
// @Tags        revisions
// @Router      /api/v1/projects/{id}/revisions/checkout [post]
func (h *ProjectsHandler) StartRevisionCheckout(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	checkout, err := h.projects.StartRevisionCheckout(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.CheckoutResponse{SessionID: checkout.SessionID, CheckoutURL: checkout.URL})
}

// RevisionPaymentStatus is read-only: the checkout redirect never flips status.
func (h *ProjectsHandler) RevisionPaymentStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	sessionID := c.Query("session_id")
	if sessionID == "" {
		badRequest(c, "session_id is required")
		return
	}
	payment, err := h.projects.RevisionPaymentStatus(c.Request.Context(), actor, id, sessionID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	v, err := h.projects.Get(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.PaymentStatusResponse{
		ProjectID:     id.String(),
		SessionID:     sessionID,
		PaymentStatus: string(payment.Status),
		ProjectStatus: string(v.Status),
	})
}

func (h *ProjectsHandler) GenerateReviewLink(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	link, err := h.projects.GenerateReviewLink(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	v, err := h.projects.Get(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.LinkResponse{
		ProjectID: id.String(),
		Status:    string(v.Status),
		URL:       link.URL.String,
		ExpiresAt: link.ExpiresAt.Time,
	})
}

func (h *ProjectsHandler) SubmitRevisionInstructions(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.RevisionInstructionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.projects.SubmitRevisionInstructions(c.Request.Context(), actor, id, req.Instructions)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.projectResponse(p, p.UpdatedAt))
}

func (h *ProjectsHandler) SubscriptionCheckout(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.SubscriptionCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	checkout, err := h.projects.SubscriptionCheckout(c.Request.Context(), actor, tier)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.CheckoutResponse{SessionID: checkout.SessionID, CheckoutURL: checkout.URL})
}
