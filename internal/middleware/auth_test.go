package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/models"
)

type stubAuthenticator map[string]models.Identity

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) models.Identity {
	return s[token]
}

func setupRouter(authenticator Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(authenticator))
	r.GET("/whoami", func(c *gin.Context) {
		identity := IdentityFromContext(c)
		_, hasUserID := c.Get(UserIDKey)
		c.JSON(http.StatusOK, gin.H{"id": identity.ID, "has_user_id": hasUserID})
	})
	return r
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	router := setupRouter(stubAuthenticator{"good": {ID: 3, IsActive: true}})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":3,"has_user_id":true}`, rec.Body.String())
}

func TestAuthMiddlewareLetsAnonymousThrough(t *testing.T) {
	router := setupRouter(stubAuthenticator{})

	req := httptest.NewRequest(http.MethodGet, "/whoami?token=bad", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":0,"has_user_id":false}`, rec.Body.String())
}
