package payment_api

import (
	"log/slog"

	"github.com/escrow-payments/internal/payment_api/handler"
	"github.com/escrow-payments/internal/payment_api/middleware"
	"github.com/gin-gonic/gin"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	paymentHandler *handler.PaymentHandler,
	webhookHandler *handler.WebhookHandler,
	healthHandler *handler.HealthHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	v1 := r.Group("/api/v1")
	{
		bookings := v1.Group("/bookings/:id", middleware.Identity())
		{
			bookings.POST("/payment-intent", paymentHandler.CreateIntent)
			bookings.POST("/capture", paymentHandler.Capture)
			bookings.POST("/refund", paymentHandler.Refund)
			bookings.GET("/payment", paymentHandler.GetPayment)
		}

		// Signed by the processor, no caller identity
		v1.POST("/webhooks/stripe", webhookHandler.Receive)
	}

	r.GET("/health", healthHandler.Check)
}
