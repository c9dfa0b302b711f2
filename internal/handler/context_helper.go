package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/afetnet/mesh-registry-api/internal/middleware"
	"github.com/afetnet/mesh-registry-api/internal/token"
)

// claimsFromContext pulls the authenticated identity placed by the auth
// middleware. A nil return means the route was reached without passing
// through it.
func claimsFromContext(c *gin.Context) *token.AccessClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*token.AccessClaims)
	if !ok {
		return nil
	}
	return claims
}
