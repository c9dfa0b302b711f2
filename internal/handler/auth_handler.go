package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/afetnet/mesh-registry-api/internal/middleware"
	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/internal/service"
	"github.com/afetnet/mesh-registry-api/pkg/config"
	appErrors "github.com/afetnet/mesh-registry-api/pkg/errors"
	"github.com/afetnet/mesh-registry-api/pkg/response"
)

const refreshCookieName = "afetnet_refresh"

// AuthHandler wires HTTP endpoints to the auth service. The refresh token
// travels as an HTTP-only cookie scoped to the refresh endpoint path, so it
// never rides along on ordinary API calls; non-browser clients may present
// it as a bearer header or JSON body instead.
type AuthHandler struct {
	service    *service.AuthService
	cookiePath string
	cookie     config.AuthConfig
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{service: svc, cookiePath: cfg.RefreshCookiePath(), cookie: cfg.Auth}
}

// Register godoc
// @Summary Register citizen account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	info, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, info)
}

// Login godoc
// @Summary Authenticate user
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, pair, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	// Body copy keeps non-browser clients working; browsers rely on the
	// cookie and never store this field.
	res.RefreshToken = pair.RefreshToken

	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Rotate the refresh token
// @Description Exchange a valid refresh token for a new token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	source := h.refreshTokenSource(c)
	res, pair, err := h.service.Refresh(c.Request.Context(), source.Token)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	if source.Kind != middleware.SourceCookie {
		res.RefreshToken = pair.RefreshToken
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Revoke all sessions
// @Description Bumps the session version, revoking every outstanding refresh token
// @Tags Authentication
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Logout(c.Request.Context(), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	// Clears this client's cookie only; other clients' copies die on next
	// use via the version bump.
	h.clearRefreshCookie(c)
	response.NoContent(c)
}

// ChangePassword godoc
// @Summary Change the current user's password
// @Description Verifies the current password, stores the new one, and revokes every outstanding refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ChangePasswordRequest true "Password change payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid password payload"))
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}

	// Sessions are revoked, so this cookie's token is already dead.
	h.clearRefreshCookie(c)
	response.NoContent(c)
}

// Me godoc
// @Summary Get current user
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.JSON(c, http.StatusOK, h.service.Me(claims), nil)
}

// refreshTokenSource resolves the refresh credential: bearer header, then
// cookie, then JSON body.
func (h *AuthHandler) refreshTokenSource(c *gin.Context) middleware.TokenSource {
	source := middleware.ExtractToken(c, refreshCookieName, true)
	if source.Kind != middleware.SourceAbsent {
		return source
	}

	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return middleware.TokenSource{Kind: middleware.SourceHeader, Token: req.RefreshToken}
	}
	return middleware.TokenSource{Kind: middleware.SourceAbsent}
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, token, int(h.cookie.RefreshTokenTTL.Seconds()), h.cookiePath, h.cookie.CookieDomain, h.cookie.CookieSecure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, "", -1, h.cookiePath, h.cookie.CookieDomain, h.cookie.CookieSecure, true)
}
