package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"client-delivery-backend/internal/services"
	"client-delivery-backend/internal/webhooks"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// EventIngester applies an authenticated webhook event.
type EventIngester interface {
	Handle(ctx context.Context, ev *webhooks.Event) error
}

var _ EventIngester = (*services.IngestService)(nil)

type WebhookHandler struct {
	sources map[string]webhooks.Source
	ingest  EventIngester
	logger  *slog.Logger
}

func NewWebhookHandler(ingest EventIngester, logger *slog.Logger, sources ...webhooks.Source) *WebhookHandler {
	h := &WebhookHandler{
		sources: make(map[string]webhooks.Source, len(sources)),
		ingest:  ingest,
		logger:  logger.With("component", "webhooks"),
	}
	for _, s := range sources {
		h.sources[s.Provider()] = s
	}
	return h
}

// Handle returns the gin handler for provider's callback route.
//
// A verified event that fails to apply is answered with a 5xx so the
// provider redelivers it. The event is only recorded as processed once it
// applied, so the redelivery is not dropped as a duplicate.
func (h *WebhookHandler) Handle(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		source, ok := h.sources[provider]
		if !ok {
			writeError(c, h.logger, webhooks.ErrNotConfigured)
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			badRequest(c, "failed to read request body")
			return
		}

		ev, err := source.Verify(c.Request.Header, body)
		if err != nil {
			h.logger.Warn("webhook rejected", "provider", provider, "error", err)
			writeError(c, h.logger, err)
			return
		}

		if err := h.ingest.Handle(c.Request.Context(), ev); err != nil {
			h.logger.Error("webhook processing failed",
				"provider", provider, "event_id", ev.ID, "type", ev.Type, "error", err)
			writeError(c, h.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// Probe answers the HEAD request Trello sends when a webhook is registered.
func (h *WebhookHandler) Probe(c *gin.Context) {
	c.Status(http.StatusOK)
}
