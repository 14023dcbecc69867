package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/escrow-payments/internal/domain/gateway"
	"github.com/escrow-payments/internal/escrow"
	"github.com/gin-gonic/gin"
)

const (
	// SignatureHeader carries the processor's HMAC signature of the raw body
	SignatureHeader = "Stripe-Signature"

	maxWebhookBodyBytes = 1 << 18
)

// WebhookHandler receives processor notifications. Responses are bare status
// codes plus an acknowledgement body; the processor retries on 5xx.
type WebhookHandler struct {
	webhooks escrow.WebhookService
	logger   *slog.Logger
}

func NewWebhookHandler(logger *slog.Logger, webhooks escrow.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

// Receive verifies and applies one event. The body is read raw so the
// signature is checked against exactly what was sent.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Error("Webhook body exceeds size limit", "limit_bytes", tooLarge.Limit)
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Warn("Failed to read webhook body", "error", err)
		c.Status(http.StatusBadRequest)
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		h.logger.Warn("Webhook without signature rejected")
		c.Status(http.StatusBadRequest)
		return
	}

	result, err := h.webhooks.Process(c.Request.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			h.logger.Warn("Webhook signature rejected", "error", err)
			c.Status(http.StatusBadRequest)
			return
		}
		h.logger.Error("Webhook processing failed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, WebhookResponse{Received: true, Duplicate: result.Duplicate})
}
