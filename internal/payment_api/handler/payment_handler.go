package handler

import (
	"errors"
	"io"
	"log/slog"

	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/escrow"
	"github.com/escrow-payments/internal/payment_api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles HTTP requests for booking payment operations
type PaymentHandler struct {
	intents  escrow.IntentService
	captures escrow.CaptureService
	refunds  escrow.RefundService
	queries  escrow.QueryService
	logger   *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(
	logger *slog.Logger,
	intents escrow.IntentService,
	captures escrow.CaptureService,
	refunds escrow.RefundService,
	queries escrow.QueryService,
) *PaymentHandler {
	return &PaymentHandler{
		intents:  intents,
		captures: captures,
		refunds:  refunds,
		queries:  queries,
		logger:   logger,
	}
}

// CreateIntent opens or reuses the held authorization for a booking
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	bookingID, requester, ok := h.bind(c)
	if !ok {
		return
	}

	result, err := h.intents.CreatePaymentIntent(c.Request.Context(), escrow.IntentRequest{
		BookingID:     bookingID,
		Requester:     requester,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		h.respondError(c, "Failed to create payment intent", bookingID, err)
		return
	}

	response := PaymentIntentResponse{
		BookingID:       bookingID.String(),
		AuthorizationID: result.AuthorizationID,
		ClientSecret:    result.ClientSecret,
		Reused:          result.Reused,
		Payment:         result.Summary,
	}
	if result.Reused {
		RespondOK(c, response)
		return
	}
	RespondCreated(c, response)
}

// Capture captures the held funds and pays the payee. Admin only.
func (h *PaymentHandler) Capture(c *gin.Context) {
	bookingID, requester, ok := h.bind(c)
	if !ok {
		return
	}
	if !requester.IsAdmin() {
		RespondError(c, payment.ErrUnauthorized)
		return
	}

	result, err := h.captures.CaptureAndTransfer(c.Request.Context(), escrow.CaptureRequest{
		BookingID:     bookingID,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		h.respondError(c, "Failed to capture payment", bookingID, err)
		return
	}

	RespondOK(c, CaptureResponse{
		BookingID:        bookingID.String(),
		ChargeID:         result.ChargeID,
		TransferID:       result.TransferID,
		TransferAmount:   result.TransferAmount,
		TransferCurrency: result.TransferCurrency,
		Payment:          result.Summary,
	})
}

// Refund refunds or cancels the booking payment
func (h *PaymentHandler) Refund(c *gin.Context) {
	bookingID, requester, ok := h.bind(c)
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("Invalid refund request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.refunds.Refund(c.Request.Context(), escrow.RefundRequest{
		BookingID:     bookingID,
		Requester:     requester,
		Reason:        req.Reason,
		Amount:        req.Amount,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		h.respondError(c, "Failed to refund payment", bookingID, err)
		return
	}

	RespondOK(c, RefundResponse{
		BookingID:     bookingID.String(),
		RefundID:      result.RefundID,
		Amount:        result.Amount,
		Currency:      result.Currency,
		FundingSource: string(result.FundingSource),
		Payment:       result.Summary,
	})
}

// GetPayment returns the ledger view of a booking payment
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	bookingID, requester, ok := h.bind(c)
	if !ok {
		return
	}

	view, err := h.queries.GetPayment(c.Request.Context(), bookingID, requester)
	if err != nil {
		h.respondError(c, "Failed to get payment", bookingID, err)
		return
	}
	RespondOK(c, view)
}

// bind parses the booking id path parameter and the caller identity
func (h *PaymentHandler) bind(c *gin.Context) (uuid.UUID, escrow.Requester, bool) {
	requester, ok := middleware.GetIdentity(c)
	if !ok {
		RespondUnauthenticated(c)
		return uuid.Nil, escrow.Requester{}, false
	}

	idParam := c.Param("id")
	bookingID, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Warn("Invalid booking ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid booking ID")
		return uuid.Nil, escrow.Requester{}, false
	}
	return bookingID, requester, true
}

func (h *PaymentHandler) respondError(c *gin.Context, msg string, bookingID uuid.UUID, err error) {
	if RespondError(c, err) {
		h.logger.Warn(msg, "booking_id", bookingID, "error", err)
		return
	}
	h.logger.Error(msg, "booking_id", bookingID, "error", err)
}
