package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	"github.com/aussiebroadwan/sessionguard/pkg/cryptox"
	"github.com/aussiebroadwan/sessionguard/pkg/idx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// MinPasswordLength is the shortest password accepted at registration or
// password change.
const MinPasswordLength = 10

// UserService is the identity collaborator: it owns user records and checks
// credentials, but knows nothing about tokens.
type UserService struct {
	Store   store.Store
	Hasher  cryptox.PasswordHasher
	Timeout time.Duration

	// EnforceAdminMFA makes admins present a TOTP code at login.
	EnforceAdminMFA bool
	// AllowAdminSignup lets Register create admins.
	AllowAdminSignup bool
	// MFAIssuer labels the TOTP account in authenticator apps.
	MFAIssuer string

	Now func() time.Time
}

// Registration is a newly created user. MFAProvisioningURI is set only for
// admins when MFA is enforced, and is never retrievable again.
type Registration struct {
	User               domain.User
	MFAProvisioningURI string
}

// Register validates and stores a new user.
func (s *UserService) Register(ctx context.Context, username, email, password, role string) (Registration, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if n := utf8.RuneCountInString(username); n < 3 || n > 64 {
		return Registration{}, fmt.Errorf("%w: username must be 3-64 characters", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Registration{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	r, ok := domain.ParseRole(role)
	if !ok {
		return Registration{}, ErrInvalidRole
	}
	if r == domain.RoleAdmin && !s.AllowAdminSignup {
		return Registration{}, ErrRoleNotAllowed
	}
	if err := checkPassword(password, username); err != nil {
		return Registration{}, err
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return Registration{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         r,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var reg Registration
	if r == domain.RoleAdmin && s.EnforceAdminMFA {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.mfaIssuer(),
			AccountName: username,
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return Registration{}, fmt.Errorf("generate totp key: %w", err)
		}
		secret := key.Secret()
		u.MFASecret = &secret
		reg.MFAProvisioningURI = key.URL()
	}

	ctx, cancel := storeContext(ctx, s.Timeout)
	defer cancel()
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return Registration{}, ErrUserExists
		}
		return Registration{}, unavailable("create user", err)
	}

	reg.User = u
	return reg, nil
}

// Authenticate checks username, password and, for admins under enforced
// MFA, the TOTP code.
func (s *UserService) Authenticate(ctx context.Context, username, password, code string) (domain.User, error) {
	u, err := s.lookup(ctx, func(ctx context.Context) (domain.User, error) {
		return s.Store.Users().GetUserByUsername(ctx, strings.TrimSpace(username))
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if err := s.Hasher.Verify(password, u.PasswordHash); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}

	if u.Role == domain.RoleAdmin && s.EnforceAdminMFA {
		switch {
		case u.MFASecret == nil || *u.MFASecret == "":
			return domain.User{}, ErrMFANotProvisioned
		case strings.TrimSpace(code) == "":
			return domain.User{}, ErrMFARequired
		}
		ok, err := totp.ValidateCustom(strings.TrimSpace(code), *u.MFASecret, s.now(), totp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil || !ok {
			return domain.User{}, ErrInvalidTOTP
		}
	}
	return u, nil
}

// GetUserByID fetches a user by id. A missing user is store.ErrNotFound.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.lookup(ctx, func(ctx context.Context) (domain.User, error) {
		return s.Store.Users().GetUserByID(ctx, userID)
	})
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := s.Hasher.Verify(current, u.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	if err := checkPassword(next, u.Username); err != nil {
		return err
	}

	hash, err := s.Hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	ctx, cancel := storeContext(ctx, s.Timeout)
	defer cancel()
	if err := s.Store.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
		return unavailable("update password", err)
	}
	return nil
}

func (s *UserService) lookup(ctx context.Context, fn func(context.Context) (domain.User, error)) (domain.User, error) {
	ctx, cancel := storeContext(ctx, s.Timeout)
	defer cancel()

	u, err := fn(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, unavailable("user lookup", err)
	}
	return u, err
}

func (s *UserService) mfaIssuer() string {
	if s.MFAIssuer == "" {
		return "sessionguard"
	}
	return s.MFAIssuer
}

func (s *UserService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func checkPassword(password, username string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: at least %d characters required", ErrWeakPassword, MinPasswordLength)
	}
	if strings.EqualFold(password, username) {
		return fmt.Errorf("%w: password must differ from username", ErrWeakPassword)
	}
	return nil
}
