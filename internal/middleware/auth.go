package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/afetnet/mesh-registry-api/internal/token"
	appErrors "github.com/afetnet/mesh-registry-api/pkg/errors"
	"github.com/afetnet/mesh-registry-api/pkg/response"
)

// ContextUserKey is the gin context key storing verified access claims.
const ContextUserKey = "currentUser"

// TokenSourceKind tags where the presented credential came from.
type TokenSourceKind int

const (
	SourceAbsent TokenSourceKind = iota
	SourceHeader
	SourceCookie
)

// TokenSource is the resolved credential for a request: a bearer header, a
// cookie, or nothing. It is resolved exactly once, before any dispatch.
type TokenSource struct {
	Kind  TokenSourceKind
	Token string
}

// ExtractToken resolves the token source for a request. The cookie is only
// consulted when allowCookie is set; ordinary API endpoints accept bearer
// headers exclusively.
func ExtractToken(c *gin.Context, cookieName string, allowCookie bool) TokenSource {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return TokenSource{Kind: SourceHeader, Token: parts[1]}
		}
		return TokenSource{Kind: SourceAbsent}
	}
	if allowCookie && cookieName != "" {
		if value, err := c.Cookie(cookieName); err == nil && value != "" {
			return TokenSource{Kind: SourceCookie, Token: value}
		}
	}
	return TokenSource{Kind: SourceAbsent}
}

// accessVerifier is what the gate needs from the auth service.
type accessVerifier interface {
	VerifyAccess(raw string) (*token.AccessClaims, error)
}

// Authenticate guards routes behind a valid access token. Verified claims
// are trusted directly; the gate deliberately never consults the session
// version, because access tokens are not revocation-aware.
func Authenticate(verifier accessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		source := ExtractToken(c, "", false)
		if source.Kind == SourceAbsent {
			response.Error(c, appErrors.ErrNoToken)
			c.Abort()
			return
		}

		claims, err := verifier.VerifyAccess(source.Token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// Claims returns the verified access claims stored by Authenticate.
func Claims(c *gin.Context) (*token.AccessClaims, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*token.AccessClaims)
	return claims, ok
}
