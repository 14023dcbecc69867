package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery turns a panic in a payment handler into a 500 envelope. The log
// line carries the booking and caller so an operator can check whether the
// processor was reached before the panic.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			attrs := []any{
				"error", r,
				"stack", string(debug.Stack()),
				"route", c.FullPath(),
				"method", c.Request.Method,
				"correlation_id", GetCorrelationID(c),
			}
			if bookingID := c.Param("id"); bookingID != "" {
				attrs = append(attrs, "booking_id", bookingID)
			}
			if requester, ok := GetIdentity(c); ok {
				attrs = append(attrs, "user_id", requester.UserID.String(), "role", string(requester.Role))
			}
			logger.Error("Panic recovered in payment handler", attrs...)

			if c.Writer.Written() {
				c.Abort()
				return
			}

			body := gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INTERNAL_SERVER_ERROR",
					"message": "An internal server error occurred",
				},
			}
			if correlationID := GetCorrelationID(c); correlationID != "" {
				body["correlation_id"] = correlationID
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()

		c.Next()
	}
}
