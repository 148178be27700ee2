package auth

import (
	"net/http"
	"strings"

	"telehealth-platform/internal/apperr"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// BearerToken extracts the raw token from the Authorization header,
// falling back to the "token" query parameter used by websocket clients.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get(authorizationHeader))
	if strings.HasPrefix(raw, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// RequireAccessToken resolves the bearer credential and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(res *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := res.Resolve(c.Request.Context(), BearerToken(c.Request))
		if err != nil {
			if apperr.KindOf(err) != apperr.KindAuthentication {
				// Surfaced by the request logger.
				_ = c.Error(err)
			}
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.PublicMessage(err)})
			return
		}

		ctx := WithIdentity(c.Request.Context(), id.UserID, id.Role)
		c.Request = c.Request.WithContext(ctx)

		c.Set("user_id", id.UserID)
		c.Set("role", id.Role)

		c.Next()
	}
}
