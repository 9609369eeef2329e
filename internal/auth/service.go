package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service owns the session lifecycle: registration, login, logout, password
// changes and the one-time-password second factor. Role administration lives
// in RBACService.
type Service struct {
	store    Store
	signer   *TokenSigner
	gate     *Gate
	resolver *Resolver
	now      func() time.Time
}

// NewService wires the gate and resolver around a shared store. The decision
// cache may be nil.
func NewService(store Store, signer *TokenSigner, cache *DecisionCache) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if signer == nil {
		return nil, errors.New("token signer is required")
	}
	return &Service{
		store:    store,
		signer:   signer,
		gate:     NewGate(signer, store),
		resolver: NewResolver(store, cache),
		now:      time.Now,
	}, nil
}

// Gate returns the request-time authentication gate.
func (s *Service) Gate() *Gate { return s.gate }

// Resolver returns the permission resolution engine.
func (s *Service) Resolver() *Resolver { return s.resolver }

// Register creates a self-service account. The persisted role defaults to the
// role flagged as default (the customer role on a fresh install) and the
// permission snapshot is populated from it in the same write.
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	role, err := s.store.Roles().FindDefault(ctx)
	if errors.Is(err, ErrNotFound) {
		role, err = s.store.Roles().FindByName(ctx, RoleCustomer)
	}
	if err != nil {
		return nil, err
	}

	user := &User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role.Name,
		Permissions:  role.Permissions,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials (and the second factor when enabled) and issues
// a session token.
func (s *Service) Login(ctx context.Context, email, password, otpCode string) (string, *Claims, *User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", nil, nil, ErrInvalidCredentials
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, nil, ErrInvalidCredentials
		}
		return "", nil, nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", nil, nil, ErrInvalidCredentials
	}
	if user.MFAEnabled {
		if err := s.verifySecondFactor(ctx, user, otpCode); err != nil {
			return "", nil, nil, err
		}
	}
	token, claims, err := s.signer.Issue(user)
	if err != nil {
		return "", nil, nil, err
	}
	return token, claims, user, nil
}

// Logout revokes the presented token by jti. The blacklist entry inherits the
// token's own expiry, so the record never outlives the token it revokes.
func (s *Service) Logout(ctx context.Context, ident Identity) error {
	return s.store.Blacklist().Revoke(ctx, ident.JTI, ident.ExpiresAt)
}

// ChangePassword verifies the current password, stores the new hash and bumps
// the token version so every outstanding session must re-authenticate.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.Users().UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	_, err = s.store.Users().BumpTokenVersion(ctx, userID)
	return err
}

// UpdateProfile changes the user's display name and email.
func (s *Service) UpdateProfile(ctx context.Context, userID, name, email string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return s.store.Users().UpdateProfile(ctx, userID, name, email)
}

// SetupMFA generates and stores a TOTP secret in the pending state. The
// second factor only takes effect after ConfirmMFA proves the authenticator
// produces valid codes.
func (s *Service) SetupMFA(ctx context.Context, userID string) (secret, url string, err error) {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if user.MFAEnabled {
		return "", "", fmt.Errorf("%w: mfa already enabled", ErrConflict)
	}
	secret, url, err = GenerateMFASecret(user.Email)
	if err != nil {
		return "", "", err
	}
	if err := s.store.Users().SetMFA(ctx, userID, false, secret, nil); err != nil {
		return "", "", err
	}
	return secret, url, nil
}

// ConfirmMFA validates a code against the pending secret, enables the second
// factor and returns the plaintext backup codes exactly once.
func (s *Service) ConfirmMFA(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, fmt.Errorf("%w: mfa already enabled", ErrConflict)
	}
	if !ValidateTOTP(user.MFASecret, code) {
		return nil, ErrInvalidCredentials
	}
	plain, hashes, err := GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().SetMFA(ctx, userID, true, user.MFASecret, hashes); err != nil {
		return nil, err
	}
	return plain, nil
}

// DisableMFA turns the second factor off. Either a current TOTP code or an
// unused backup code authorizes the change.
func (s *Service) DisableMFA(ctx context.Context, userID, code string) error {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return fmt.Errorf("%w: mfa is not enabled", ErrInvalidInput)
	}
	if !ValidateTOTP(user.MFASecret, code) {
		if _, ok := ConsumeBackupCode(user.MFABackupCodes, code); !ok {
			return ErrInvalidCredentials
		}
	}
	return s.store.Users().SetMFA(ctx, userID, false, "", nil)
}

func (s *Service) verifySecondFactor(ctx context.Context, user *User, code string) error {
	if code == "" {
		return ErrInvalidCredentials
	}
	if ValidateTOTP(user.MFASecret, code) {
		return nil
	}
	remaining, ok := ConsumeBackupCode(user.MFABackupCodes, code)
	if !ok {
		return ErrInvalidCredentials
	}
	// Backup codes are single-use: persist the reduced set before the login
	// proceeds.
	return s.store.Users().SetMFA(ctx, user.ID, true, user.MFASecret, remaining)
}
