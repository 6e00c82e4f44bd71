package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"chat-gateway/internal/models"
)

const (
	userIDClaim = "user_id"
	expClaim    = "exp"
)

// IdentityLoader loads the stored identity behind a verified user id.
type IdentityLoader interface {
	GetIdentity(ctx context.Context, userID int) (models.Identity, error)
}

// Authenticator resolves bearer credentials to identities.
type Authenticator struct {
	secret []byte
	users  IdentityLoader
	log    *zap.Logger
}

func NewAuthenticator(secret string, users IdentityLoader, log *zap.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: users, log: log}
}

// UserIDFromToken verifies an HS256 token and returns its user_id claim.
func (a *Authenticator) UserIDFromToken(tokenString string) (int, error) {
	if tokenString == "" {
		return 0, errors.New("empty token")
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid token claims")
	}
	if _, ok := claims[expClaim]; !ok {
		return 0, errors.New("missing exp claim")
	}
	userID, ok := claims[userIDClaim].(float64)
	if !ok || userID < 1 {
		return 0, errors.New("invalid user id claim")
	}
	return int(userID), nil
}

// Authenticate returns the identity for a credential. Any failure yields
// the anonymous identity; permissions decide what anonymous may do.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) models.Identity {
	if tokenString == "" {
		return models.Identity{}
	}
	userID, err := a.UserIDFromToken(tokenString)
	if err != nil {
		a.log.Debug("credential rejected", zap.Error(err))
		return models.Identity{}
	}
	identity, err := a.users.GetIdentity(ctx, userID)
	if err != nil {
		a.log.Info("identity lookup failed", zap.Int("user_id", userID), zap.Error(err))
		return models.Identity{}
	}
	return identity
}

// IssueToken signs a token for userID valid for ttl.
func IssueToken(secret string, userID int, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIDClaim: userID,
		expClaim:    time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
