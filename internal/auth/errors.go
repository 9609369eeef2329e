package auth

import "errors"

var (
	// ErrUnauthenticated indicates no credential was presented at all.
	ErrUnauthenticated = errors.New("auth: missing credentials")

	// ErrInvalidToken covers every token verification failure: signature,
	// audience, issuer, expiry, decoding, or a subject that no longer exists.
	// Callers never learn which check failed.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrRevokedToken indicates the token id is present in the blacklist.
	ErrRevokedToken = errors.New("auth: token revoked")

	// ErrStaleToken indicates the token's embedded version no longer matches
	// the user's current token version.
	ErrStaleToken = errors.New("auth: stale token")

	// ErrPermissionDenied indicates an authenticated identity lacks the
	// required permission after hierarchy traversal.
	ErrPermissionDenied = errors.New("auth: permission denied")

	// ErrInvalidCredentials indicates a failed login attempt. Wrong email,
	// wrong password and wrong one-time code are indistinguishable.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrNotFound         = errors.New("auth: not found")
	ErrAlreadyProcessed = errors.New("auth: request already processed")
	ErrConflict         = errors.New("auth: already exists")
	ErrInvalidInput     = errors.New("auth: invalid input")
)
