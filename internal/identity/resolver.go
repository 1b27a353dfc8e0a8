// Package identity resolves bearer credentials to verified user identities.
// This is the only place external identifiers are translated to
// storage-internal ones; everything past this boundary works with
// model.Identity.
package identity

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/studyverse/chat-platform/internal/model"
	"github.com/studyverse/chat-platform/internal/store"
)

// ErrUnauthenticated indicates an absent, malformed, or unresolvable
// credential.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Resolver maps a bearer credential to a stable user identity.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (*model.Identity, error)
}

// Claims are the JWT claims issued by the auth service. UserID is the
// external identifier; the subject is not relied on.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// JWTResolver verifies HMAC-signed tokens and resolves the embedded external
// id against the user store.
type JWTResolver struct {
	secret []byte
	users  store.UserStore
}

// NewJWTResolver constructs a resolver over the given signing secret and
// user store.
func NewJWTResolver(secret string, users store.UserStore) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), users: users}
}

var _ Resolver = (*JWTResolver)(nil)

// Resolve verifies the token and loads the user behind it. Any failure,
// including a token for a user that no longer exists, is ErrUnauthenticated.
func (r *JWTResolver) Resolve(ctx context.Context, credential string) (*model.Identity, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, ErrUnauthenticated
	}

	u, err := r.users.GetByExternalID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	return &model.Identity{
		InternalID:  u.ID,
		ExternalID:  u.ExternalID,
		DisplayName: u.Username,
		Email:       u.Email,
	}, nil
}
