package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/security"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/usecase"
)

// errorBody builds the `{"error": ..., "trace_id": ...}` payload every
// endpoint in this service responds with on failure.
func errorBody(c *gin.Context, message string) gin.H {
	body := gin.H{"error": message}
	if id := GetTraceID(c); id != "" {
		body["trace_id"] = id
	}
	return body
}

// RequireTicket validates the Authorization bearer ticket and stores the
// verified claims. Verification failures deliberately collapse to a short
// reason string.
func RequireTicket(tickets *usecase.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tickets == nil || !tickets.Enabled() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				errorBody(c, "ticketing is not configured"))
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				errorBody(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				errorBody(c, "invalid authorization format: expected 'Bearer <ticket>'"))
			return
		}

		ticket := strings.TrimSpace(parts[1])
		if ticket == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				errorBody(c, "missing ticket"))
			return
		}

		claims, err := tickets.Verify(ticket)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrTicketExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					errorBody(c, "ticket expired"))
			case errors.Is(err, security.ErrTicketInvalid):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					errorBody(c, "ticket invalid"))
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					errorBody(c, "ticket rejected"))
			}
			return
		}

		c.Set(AccountIDKey, claims.AccountID)
		c.Set(ClaimsKey, claims)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.AccountID = claims.AccountID
		}

		c.Next()
	}
}

// RequireAdmin gates operator endpoints behind a static bearer token. An
// unconfigured token disables the whole family with 503 rather than letting
// anything through.
func RequireAdmin(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				errorBody(c, "admin endpoints are not configured"))
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				errorBody(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		presented := strings.TrimSpace(parts[1])
		if subtle.ConstantTimeCompare([]byte(presented), []byte(adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				errorBody(c, "invalid admin token"))
			return
		}

		c.Next()
	}
}

// GetTicketClaims retrieves the verified ticket claims set by RequireTicket.
func GetTicketClaims(c *gin.Context) (*security.TicketClaims, bool) {
	value, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*security.TicketClaims)
	return claims, ok
}

// GetAuthenticatedAccountID retrieves the account id from context (helper for handlers)
func GetAuthenticatedAccountID(c *gin.Context) (string, bool) {
	accountID, exists := c.Get(AccountIDKey)
	if !exists {
		return "", false
	}

	if id, ok := accountID.(string); ok {
		return id, true
	}

	return "", false
}
