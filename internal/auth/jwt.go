// Package auth validates bearer tokens issued by the identity provider and
// carries the resulting actor through request contexts.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the caller identity. The subject is used
// when user_id is absent.
func (c *Claims) Actor() models.Actor {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	role := c.Role
	if role == "" {
		role = models.RoleUser
	}
	return models.Actor{UserID: id, Name: c.Name, Email: c.Email, Role: role}
}

// GenerateToken signs an HS256 token for actor. Used by tests and local tooling.
func GenerateToken(actor models.Actor, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: actor.UserID,
		Name:   actor.Name,
		Email:  actor.Email,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" && claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type contextKey struct{}

// WithActor stores actor in ctx
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom returns the authenticated actor, if any
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(models.Actor)
	return actor, ok
}
