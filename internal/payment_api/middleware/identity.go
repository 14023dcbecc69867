package middleware

import (
	"net/http"
	"strings"

	"github.com/escrow-payments/internal/domain/shared"
	"github.com/escrow-payments/internal/escrow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// UserIDHeader and UserRoleHeader are set by the upstream auth proxy
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"

	IdentityKey = "identity"
)

var knownRoles = map[shared.UserRole]bool{
	shared.UserRoleCustomer:     true,
	shared.UserRoleProfessional: true,
	shared.UserRoleAdmin:        true,
}

// Identity middleware reads the caller from the auth proxy headers.
// A missing role defaults to customer; anything unparseable is rejected with 401.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(strings.TrimSpace(c.GetHeader(UserIDHeader)))
		if err != nil || userID == uuid.Nil {
			abortUnauthenticated(c, "Missing or invalid "+UserIDHeader+" header")
			return
		}

		role := shared.UserRole(strings.ToLower(strings.TrimSpace(c.GetHeader(UserRoleHeader))))
		if role == "" {
			role = shared.UserRoleCustomer
		}
		if !knownRoles[role] {
			abortUnauthenticated(c, "Unknown "+UserRoleHeader+" header")
			return
		}

		c.Set(IdentityKey, escrow.Requester{UserID: userID, Role: role})
		c.Next()
	}
}

// GetIdentity returns the requester stored by Identity
func GetIdentity(c *gin.Context) (escrow.Requester, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return escrow.Requester{}, false
	}
	requester, ok := v.(escrow.Requester)
	return requester, ok
}

func abortUnauthenticated(c *gin.Context, message string) {
	response := gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHENTICATED",
			"message": message,
		},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, response)
}
