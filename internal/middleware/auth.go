package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/models"
)

const (
	identityKey = "identity"
	// UserIDKey holds the authenticated user id as an int.
	UserIDKey = "userID"
)

// Authenticator resolves a credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) models.Identity
}

// AuthMiddleware resolves the request credential and stores the identity in
// the gin context. It never aborts: unauthenticated requests carry the
// anonymous identity and the websocket handshake decides whether to accept.
func AuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := authenticator.Authenticate(c.Request.Context(), auth.CredentialFromRequest(c.Request))
		c.Set(identityKey, identity)
		if identity.ID != 0 {
			c.Set(UserIDKey, identity.ID)
		}
		c.Next()
	}
}

// IdentityFromContext returns the identity set by AuthMiddleware, or the
// anonymous identity.
func IdentityFromContext(c *gin.Context) models.Identity {
	if val, ok := c.Get(identityKey); ok {
		if identity, ok := val.(models.Identity); ok {
			return identity
		}
	}
	return models.Identity{}
}
