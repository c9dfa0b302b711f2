package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afetnet/mesh-registry-api/internal/middleware"
	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/internal/token"
)

func TestClaimsFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, claimsFromContext(c))

	c.Set(middleware.ContextUserKey, "not-claims")
	assert.Nil(t, claimsFromContext(c))

	c.Set(middleware.ContextUserKey, &token.AccessClaims{UserID: "u1", Role: models.RoleCitizen})
	claims := claimsFromContext(c)
	require.NotNil(t, claims)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleCitizen, claims.Role)
}
