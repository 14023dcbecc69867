package handler

import (
	"errors"
	"net/http"

	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/payment_api/middleware"
	"github.com/gin-gonic/gin"
)

// Response represents a standard API response
type Response struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewResponse creates a new response with data
func NewResponse(data interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) *Response {
	return &Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	response := NewResponse(data)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	response := NewErrorResponse(code, message)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// RespondUnauthenticated sends a 401 Unauthorized response with an error
func RespondUnauthenticated(c *gin.Context) {
	RespondWithError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; the first match wins
var errorMappings = []errorMapping{
	{payment.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED", "Not allowed to access this payment"},
	{payment.ErrNoPayment, http.StatusNotFound, "NO_PAYMENT", "No payment exists for this booking"},
	{payment.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Booking not found"},
	{payment.ErrAlreadyProcessed, http.StatusConflict, "ALREADY_PROCESSED", "Payment already processed"},
	{payment.ErrInvalidStatus, http.StatusConflict, "INVALID_STATUS", "Operation not valid for the current payment status"},
	{payment.ErrRefundExceedsTotal, http.StatusBadRequest, "REFUND_EXCEEDS_TOTAL", "Refund exceeds the refundable total"},
	{payment.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT", "Invalid payment amount"},
	{payment.ErrPayeeNotReady, http.StatusUnprocessableEntity, "PAYEE_NOT_READY", "Payee payout account is not ready"},
	{payment.ErrTransferFailed{}, http.StatusBadGateway, "TRANSFER_FAILED", "Payment captured but the payout transfer failed"},
	{payment.ErrProcessorError, http.StatusBadGateway, "PROCESSOR_ERROR", "Payment processor error"},
}

// RespondError maps a coordinator error to its status code and error code.
// It reports false for errors outside the payment taxonomy, which are answered with 500.
func RespondError(c *gin.Context, err error) bool {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			RespondWithError(c, m.status, m.code, m.message)
			return true
		}
	}
	RespondInternalError(c)
	return false
}
