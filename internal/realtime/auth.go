package realtime

import (
	"context"
	"errors"
	"fmt"

	"taskhub/internal/identity"

	"github.com/google/uuid"
)

var (
	ErrUnauthenticated  = errors.New("authentication error")
	ErrIdentityNotFound = errors.New("user not found")
)

type TokenValidator interface {
	ValidateToken(tokenString string) (uuid.UUID, error)
}

// IdentityLookup resolves an id to an identity without secret fields.
type IdentityLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identity.Identity, error)
}

type Authenticator struct {
	tokens     TokenValidator
	identities IdentityLookup
}

func NewAuthenticator(tokens TokenValidator, identities IdentityLookup) *Authenticator {
	return &Authenticator{tokens: tokens, identities: identities}
}

// Authenticate verifies the connection credential and resolves its subject.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (identity.Identity, error) {
	if token == "" {
		return identity.Identity{}, ErrUnauthenticated
	}

	userID, err := a.tokens.ValidateToken(token)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	ident, err := a.identities.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.Identity{}, ErrIdentityNotFound
		}
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if ident == nil {
		return identity.Identity{}, ErrIdentityNotFound
	}
	return *ident, nil
}
