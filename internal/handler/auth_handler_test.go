package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/afetnet/mesh-registry-api/internal/middleware"
	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/internal/service"
	"github.com/afetnet/mesh-registry-api/internal/token"
	"github.com/afetnet/mesh-registry-api/pkg/config"
)

type memoryUserStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	nextID int
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[string]*models.User)}
}

func (s *memoryUserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	user.ID = fmt.Sprintf("u%d", s.nextID)
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *memoryUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memoryUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (s *memoryUserStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *memoryUserStore) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.PasswordHash = passwordHash
		user.UpdatedAt = updatedAt
	}
	return nil
}

func (s *memoryUserStore) AdvanceSessionVersion(ctx context.Context, id string, expected int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok || user.SessionVersion != expected {
		return false, nil
	}
	user.SessionVersion++
	return true, nil
}

func (s *memoryUserStore) RevokeSessions(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.SessionVersion++
	}
	return nil
}

func buildAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Env:       "test",
		APIPrefix: "/api/v1",
		Auth: config.AuthConfig{
			AccessTokenSecret:  "test-access-secret",
			RefreshTokenSecret: "test-refresh-secret",
			AccessTokenTTL:     15 * time.Minute,
			RefreshTokenTTL:    7 * 24 * time.Hour,
			BcryptCost:         bcrypt.MinCost,
			Issuer:             "mesh-registry-test",
		},
	}

	svc := service.NewAuthService(
		newMemoryUserStore(),
		token.NewIssuer(cfg.Auth),
		token.NewVerifier(cfg.Auth),
		nil, nil, nil, nil,
		cfg.Auth.BcryptCost,
	)
	h := NewAuthHandler(svc, cfg)

	router := gin.New()
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", middleware.Authenticate(svc), h.Logout)
		auth.POST("/change-password", middleware.Authenticate(svc), h.ChangePassword)
		auth.GET("/me", middleware.Authenticate(svc), h.Me)
	}
	return router
}

func postJSON(router *gin.Engine, path, payload string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func refreshCookie(t *testing.T, resp *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range resp.Result().Cookies() {
		if cookie.Name == refreshCookieName {
			return cookie
		}
	}
	t.Fatal("refresh cookie not set")
	return nil
}

type authBody struct {
	Data struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeAuthBody(t *testing.T, resp *httptest.ResponseRecorder) authBody {
	t.Helper()
	var body authBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

const registerPayload = `{"email":"citizen@example.com","password":"correct-horse","full_name":"Test Citizen","national_id":"10000000146"}`
const loginPayload = `{"email":"citizen@example.com","password":"correct-horse"}`

func TestAuthFlow(t *testing.T) {
	router := buildAuthRouter(t)

	resp := postJSON(router, "/api/v1/auth/register", registerPayload, nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	var loginCookie *http.Cookie
	var accessToken string

	t.Run("login sets path-scoped http-only cookie", func(t *testing.T) {
		resp := postJSON(router, "/api/v1/auth/login", loginPayload, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		cookie := refreshCookie(t, resp)
		assert.Equal(t, "/api/v1/auth/refresh", cookie.Path)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Positive(t, cookie.MaxAge)

		body := decodeAuthBody(t, resp)
		require.NotEmpty(t, body.Data.AccessToken)
		loginCookie = cookie
		accessToken = body.Data.AccessToken
	})

	var rotatedCookie *http.Cookie

	t.Run("cookie refresh rotates and omits body token", func(t *testing.T) {
		resp := postJSON(router, "/api/v1/auth/refresh", "", func(req *http.Request) {
			req.AddCookie(loginCookie)
		})
		require.Equal(t, http.StatusOK, resp.Code)

		cookie := refreshCookie(t, resp)
		assert.NotEqual(t, loginCookie.Value, cookie.Value)

		body := decodeAuthBody(t, resp)
		assert.NotEmpty(t, body.Data.AccessToken)
		assert.Empty(t, body.Data.RefreshToken)
		rotatedCookie = cookie
	})

	t.Run("replaying the consumed cookie fails generically", func(t *testing.T) {
		resp := postJSON(router, "/api/v1/auth/refresh", "", func(req *http.Request) {
			req.AddCookie(loginCookie)
		})
		require.Equal(t, http.StatusUnauthorized, resp.Code)

		body := decodeAuthBody(t, resp)
		require.NotNil(t, body.Error)
		assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
		assert.Equal(t, "unauthorized", body.Error.Message)
	})

	t.Run("body refresh returns the rotated token in the body", func(t *testing.T) {
		payload := fmt.Sprintf(`{"refresh_token":%q}`, rotatedCookie.Value)
		resp := postJSON(router, "/api/v1/auth/refresh", payload, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		body := decodeAuthBody(t, resp)
		assert.NotEmpty(t, body.Data.RefreshToken)
		rotatedCookie = refreshCookie(t, resp)
	})

	t.Run("logout clears the cookie and kills outstanding tokens", func(t *testing.T) {
		resp := postJSON(router, "/api/v1/auth/logout", "", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		})
		require.Equal(t, http.StatusNoContent, resp.Code)

		cleared := refreshCookie(t, resp)
		assert.Empty(t, cleared.Value)
		assert.Negative(t, cleared.MaxAge)

		resp = postJSON(router, "/api/v1/auth/refresh", "", func(req *http.Request) {
			req.AddCookie(rotatedCookie)
		})
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("access token survives logout until expiry", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+accessToken)
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		require.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("refresh without any credential fails", func(t *testing.T) {
		resp := postJSON(router, "/api/v1/auth/refresh", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})
}

func TestChangePassword(t *testing.T) {
	router := buildAuthRouter(t)

	resp := postJSON(router, "/api/v1/auth/register", registerPayload, nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = postJSON(router, "/api/v1/auth/login", loginPayload, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	accessToken := decodeAuthBody(t, resp).Data.AccessToken
	cookie := refreshCookie(t, resp)

	t.Run("wrong current password is rejected", func(t *testing.T) {
		payload := `{"current_password":"wrong-pass","new_password":"battery-staple"}`
		resp := postJSON(router, "/api/v1/auth/change-password", payload, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		})
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("requires authentication", func(t *testing.T) {
		payload := `{"current_password":"correct-horse","new_password":"battery-staple"}`
		resp := postJSON(router, "/api/v1/auth/change-password", payload, nil)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("success clears the cookie and revokes refresh tokens", func(t *testing.T) {
		payload := `{"current_password":"correct-horse","new_password":"battery-staple"}`
		resp := postJSON(router, "/api/v1/auth/change-password", payload, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		})
		require.Equal(t, http.StatusNoContent, resp.Code)

		cleared := refreshCookie(t, resp)
		assert.Empty(t, cleared.Value)
		assert.Negative(t, cleared.MaxAge)

		resp = postJSON(router, "/api/v1/auth/refresh", "", func(req *http.Request) {
			req.AddCookie(cookie)
		})
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("old password no longer logs in", func(t *testing.T) {
		resp := postJSON(router, "/api/v1/auth/login", loginPayload, nil)
		require.Equal(t, http.StatusUnauthorized, resp.Code)

		resp = postJSON(router, "/api/v1/auth/login", `{"email":"citizen@example.com","password":"battery-staple"}`, nil)
		require.Equal(t, http.StatusOK, resp.Code)
	})
}

func TestLoginWrongPassword(t *testing.T) {
	router := buildAuthRouter(t)

	resp := postJSON(router, "/api/v1/auth/register", registerPayload, nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = postJSON(router, "/api/v1/auth/login", `{"email":"citizen@example.com","password":"wrong"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	body := decodeAuthBody(t, resp)
	require.NotNil(t, body.Error)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
}
