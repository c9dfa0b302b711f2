package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/internal/token"
	appErrors "github.com/afetnet/mesh-registry-api/pkg/errors"
)

type stubVerifier struct {
	claims *token.AccessClaims
	err    error
}

func (s *stubVerifier) VerifyAccess(raw string) (*token.AccessClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func newAuthRequest(header, cookie string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "afetnet_refresh", Value: cookie})
	}
	return req
}

func TestExtractTokenPrefersHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = newAuthRequest("Bearer abc", "from-cookie")

	source := ExtractToken(c, "afetnet_refresh", true)
	assert.Equal(t, SourceHeader, source.Kind)
	assert.Equal(t, "abc", source.Token)
}

func TestExtractTokenFallsBackToCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = newAuthRequest("", "from-cookie")

	source := ExtractToken(c, "afetnet_refresh", true)
	assert.Equal(t, SourceCookie, source.Kind)
	assert.Equal(t, "from-cookie", source.Token)
}

func TestExtractTokenIgnoresCookieWhenNotAllowed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = newAuthRequest("", "from-cookie")

	source := ExtractToken(c, "afetnet_refresh", false)
	assert.Equal(t, SourceAbsent, source.Kind)
	assert.Empty(t, source.Token)
}

func TestExtractTokenMalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, header := range []string{"Bearer", "Bearer ", "Basic abc", "abc"} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = newAuthRequest(header, "")
		source := ExtractToken(c, "", false)
		assert.Equal(t, SourceAbsent, source.Kind, "header %q", header)
	}
}

func runAuthenticated(t *testing.T, verifier accessVerifier, header string) (*httptest.ResponseRecorder, *token.AccessClaims) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	router := gin.New()

	var captured *token.AccessClaims
	router.GET("/", Authenticate(verifier), func(c *gin.Context) {
		claims, ok := Claims(c)
		require.True(t, ok)
		captured = claims
		c.Status(http.StatusNoContent)
	})

	router.ServeHTTP(recorder, newAuthRequest(header, ""))
	return recorder, captured
}

func TestAuthenticatePassesClaimsThrough(t *testing.T) {
	verifier := &stubVerifier{claims: &token.AccessClaims{UserID: "u1", Role: models.RoleCitizen}}
	recorder, claims := runAuthenticated(t, verifier, "Bearer good")

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "u1", claims.UserID)
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	verifier := &stubVerifier{claims: &token.AccessClaims{UserID: "u1"}}
	recorder, _ := runAuthenticated(t, verifier, "")

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

// Every 401 variant must serialize to the same generic body so a caller
// cannot probe which check failed.
func TestAuthenticateFailureBodiesAreGeneric(t *testing.T) {
	for _, sentinel := range []*appErrors.Error{
		appErrors.ErrTokenExpired,
		appErrors.ErrTokenSignature,
		appErrors.ErrTokenMalformed,
	} {
		verifier := &stubVerifier{err: appErrors.Clone(sentinel, "")}
		recorder, _ := runAuthenticated(t, verifier, "Bearer bad")

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)

		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
		assert.Equal(t, appErrors.ErrUnauthorized.Code, body.Error.Code, "sentinel %s", sentinel.Code)
		assert.Equal(t, appErrors.ErrUnauthorized.Message, body.Error.Message)
	}
}
