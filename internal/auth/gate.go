package auth

import (
	"context"
	"errors"
)

// Gate is the request-time authentication decision. Each call is a single
// synchronous pass with terminal outcomes only: verify the token, consult the
// blacklist, load the user, compare token versions. Nothing is cached here;
// revocations and version bumps must be observed immediately.
type Gate struct {
	signer *TokenSigner
	store  Store
}

// NewGate constructs the authentication gate.
func NewGate(signer *TokenSigner, store Store) *Gate {
	return &Gate{signer: signer, store: store}
}

// Authenticate validates a raw token and resolves the identity behind it.
//
// Failure classes, in check order: ErrUnauthenticated (no token),
// ErrInvalidToken (verification failed or the subject no longer exists),
// ErrRevokedToken (jti blacklisted), ErrStaleToken (version mismatch).
func (g *Gate) Authenticate(ctx context.Context, rawToken string) (Identity, error) {
	if rawToken == "" {
		return Identity{}, ErrUnauthenticated
	}
	claims, err := g.signer.ParseAndValidate(rawToken)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	revoked, err := g.store.Blacklist().IsRevoked(ctx, claims.ID)
	if err != nil {
		return Identity{}, err
	}
	if revoked {
		return Identity{}, ErrRevokedToken
	}
	user, err := g.store.Users().Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// User deleted after issuance; indistinguishable from a bad token.
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, err
	}
	if user.TokenVersion != claims.TokenVersion {
		return Identity{}, ErrStaleToken
	}
	return Identity{
		ID:           user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		JTI:          claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}
