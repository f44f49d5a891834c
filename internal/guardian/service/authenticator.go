package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pquerna/otp/totp"

	"github.com/guardianhq/guardian/internal/guardian/domain"
	"github.com/guardianhq/guardian/internal/guardian/store"
	"github.com/guardianhq/guardian/pkg/cryptox"
	"github.com/guardianhq/guardian/pkg/jwtx"
	"github.com/guardianhq/guardian/pkg/slogx"
)

var (
	ErrInvalidCredentials   = errors.New("invalid_credentials")
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrInvalidClient        = errors.New("invalid_client")
	ErrInvalidRefresh       = errors.New("invalid_refresh_token")
	ErrClaimsBuild          = errors.New("claims_build_failed")
)

// Assertion types the store-backed verifier understands.
const (
	AssertionJWT  = "jwt"
	AssertionTOTP = "totp"
)

// Identity is the authenticated resource owner. It carries no credential
// material, only what downstream claim building needs.
type Identity struct {
	UserID string
	Email  string
}

// CredentialVerifier abstracts how credentials are checked so the
// authenticator stays a pure dispatcher. The store-backed implementation
// below is the production one; tests swap in fakes.
type CredentialVerifier interface {
	VerifyPassword(ctx context.Context, username, password string) (Identity, error)
	VerifyAssertion(ctx context.Context, assertionType, assertion string) (Identity, error)
}

// GrantAuthenticator maps a grant request onto the matching verification
// path. It validates credential shape first so a malformed request never
// reaches the verifier.
type GrantAuthenticator struct {
	Verifier CredentialVerifier
}

func (a *GrantAuthenticator) Authenticate(ctx context.Context, req domain.GrantRequest) (Identity, error) {
	l := slogx.FromContext(ctx)

	switch req.GrantType {
	case domain.GrantPassword:
		username := strings.TrimSpace(req.Credential(domain.CredUsername))
		password := req.Credential(domain.CredPassword)
		if username == "" || password == "" {
			return Identity{}, ErrInvalidCredentials
		}

		id, err := a.Verifier.VerifyPassword(ctx, username, password)
		if err != nil {
			l.Warn("password grant verification failed", slog.String("username", username))
			return Identity{}, err
		}
		return id, nil

	case domain.GrantAssertion:
		assertionType := strings.TrimSpace(req.Credential(domain.CredAssertionType))
		assertion := req.Credential(domain.CredAssertion)
		if assertionType == "" || assertion == "" {
			return Identity{}, ErrInvalidCredentials
		}

		id, err := a.Verifier.VerifyAssertion(ctx, assertionType, assertion)
		if err != nil {
			if !errors.Is(err, ErrUnsupportedGrantType) {
				l.Warn("assertion grant verification failed", slog.String("assertion_type", assertionType))
			}
			return Identity{}, err
		}
		return id, nil

	default:
		return Identity{}, ErrUnsupportedGrantType
	}
}

// StoreVerifier checks credentials against the user store. Password hashes
// are argon2 PHC strings; JWT assertions are verified with the same verifier
// the introspection endpoint uses.
type StoreVerifier struct {
	Store store.Store

	// AssertionVerifier validates bearer JWT assertions. Nil disables the
	// jwt assertion type.
	AssertionVerifier jwtx.Verifier
}

func (v *StoreVerifier) VerifyPassword(ctx context.Context, username, password string) (Identity, error) {
	u, err := v.Store.Users().GetUserByEmail(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	return Identity{UserID: u.ID, Email: u.Email}, nil
}

func (v *StoreVerifier) VerifyAssertion(ctx context.Context, assertionType, assertion string) (Identity, error) {
	switch assertionType {
	case AssertionJWT:
		return v.verifyJWTAssertion(ctx, assertion)
	case AssertionTOTP:
		return v.verifyTOTPAssertion(ctx, assertion)
	default:
		return Identity{}, ErrUnsupportedGrantType
	}
}

func (v *StoreVerifier) verifyJWTAssertion(ctx context.Context, assertion string) (Identity, error) {
	if v.AssertionVerifier == nil {
		return Identity{}, ErrUnsupportedGrantType
	}

	claims, err := v.AssertionVerifier.Verify(assertion)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	u, err := v.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, err
	}

	return Identity{UserID: u.ID, Email: u.Email}, nil
}

// verifyTOTPAssertion expects the payload as "<email>:<code>", where code is
// the current 6-digit value for the user's enrolled TOTP secret.
func (v *StoreVerifier) verifyTOTPAssertion(ctx context.Context, assertion string) (Identity, error) {
	sep := strings.LastIndex(assertion, ":")
	if sep <= 0 || sep == len(assertion)-1 {
		return Identity{}, ErrInvalidCredentials
	}
	email, code := assertion[:sep], assertion[sep+1:]

	u, err := v.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, err
	}

	if u.TOTPSecret == nil || *u.TOTPSecret == "" {
		return Identity{}, ErrInvalidCredentials
	}
	if !totp.Validate(code, *u.TOTPSecret) {
		return Identity{}, ErrInvalidCredentials
	}

	return Identity{UserID: u.ID, Email: u.Email}, nil
}
