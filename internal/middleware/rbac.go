package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
)

// RequirePermission checks that the authenticated principal holds perm.
// It must run after RequireAuth.
func RequirePermission(authz ports.Authorizer, perm model.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if !authz.Can(principal, perm) {
			response.AbortFail(c, http.StatusForbidden, response.ErrPermissionDenied)
			return
		}
		c.Next()
	}
}
