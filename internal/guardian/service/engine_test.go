package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/guardianhq/guardian/internal/guardian/domain"
	"github.com/guardianhq/guardian/internal/guardian/store"
	redisdriver "github.com/guardianhq/guardian/internal/guardian/store/drivers/redis"
	"github.com/guardianhq/guardian/internal/guardian/store/drivers/sqlite"
	"github.com/guardianhq/guardian/pkg/cryptox"
	"github.com/guardianhq/guardian/pkg/idx"
	"github.com/guardianhq/guardian/pkg/jwtx"
)

const (
	testIssuer   = "https://auth.test"
	testPassword = "correct-horse-battery"
	testSecret   = "0123456789abcdef0123456789abcdef"
)

type engineFixture struct {
	engine *AuthorizationEngine
	store  *sqlite.Store

	user       domain.User
	role       domain.Role
	client     domain.Client
	totpSecret string
}

func newEngineFixture(t *testing.T, cfg PolicyConfig) *engineFixture {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	role := domain.Role{
		ID:          idx.New().String(),
		Name:        "member",
		Permissions: []string{"read:profile", "write:profile"},
	}
	require.NoError(t, st.Roles().CreateRole(ctx, role))

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "guardian", AccountName: "alice@example.com"})
	require.NoError(t, err)
	totpSecret := key.Secret()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	user := domain.User{
		ID:           idx.New().String(),
		Email:        "alice@example.com",
		PasswordHash: hash,
		RoleID:       role.ID,
		TOTPSecret:   &totpSecret,
	}
	require.NoError(t, st.Users().CreateUser(ctx, user))

	client := domain.Client{ID: idx.New().String(), Name: "web"}
	require.NoError(t, st.Clients().CreateClient(ctx, client))

	signer, err := jwtx.NewSignerHS256("k1", []byte(testSecret))
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierHS256([]byte(testSecret), testIssuer)
	require.NoError(t, err)

	policy := &TokenPolicy{Config: cfg, Tokens: st.AccessTokens()}

	engine := &AuthorizationEngine{
		Store: st,
		Authenticator: &GrantAuthenticator{
			Verifier: &StoreVerifier{Store: st, AssertionVerifier: verifier},
		},
		Policy:   policy,
		Claims:   &ClaimsBuilder{Store: st, Issuer: testIssuer},
		Signer:   signer,
		Verifier: verifier,
		EnabledGrants: map[domain.GrantType]struct{}{
			domain.GrantPassword:     {},
			domain.GrantAssertion:    {},
			domain.GrantRefreshToken: {},
		},
	}

	return &engineFixture{
		engine:     engine,
		store:      st,
		user:       user,
		role:       role,
		client:     client,
		totpSecret: totpSecret,
	}
}

func defaultPolicy() PolicyConfig {
	return PolicyConfig{
		AccessTTL:         2 * time.Hour,
		RefreshTTL:        30 * 24 * time.Hour,
		IssueRefreshToken: true,
	}
}

func (f *engineFixture) passwordRequest(password string) domain.GrantRequest {
	return domain.GrantRequest{
		GrantType: domain.GrantPassword,
		Credentials: map[string]string{
			domain.CredUsername: f.user.Email,
			domain.CredPassword: password,
		},
		ClientID: f.client.ID,
	}
}

func TestEngineIssuePasswordGrant(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	ctx := context.Background()

	pair, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, 2*time.Hour, pair.ExpiresIn)

	claims, err := f.engine.Verifier.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, claims.Subject)
	require.Equal(t, testIssuer, claims.Issuer)
	require.Equal(t, f.role.Permissions, claims.Permissions)
	require.Equal(t, f.client.ID, claims.ClientID)
	require.NotNil(t, claims.User)
	require.Equal(t, f.user.Email, claims.User.Email)

	// exp = iat + ttl exactly
	require.Equal(t, 2*time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	// The token trace is queryable for the (client, user) pair.
	rec, err := f.store.AccessTokens().FindActiveAccessToken(ctx, f.client.ID, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, claims.ID, rec.TokenID)
	require.Equal(t, pair.AccessToken, rec.Token)
}

func TestEngineIssueWrongPassword(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	ctx := context.Background()

	_, err := f.engine.Issue(ctx, f.passwordRequest("not-the-password"))
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// Nothing was persisted for the failed attempt.
	_, err = f.store.AccessTokens().FindActiveAccessToken(ctx, f.client.ID, f.user.ID)
	require.Error(t, err)
}

func TestEngineIssueUnknownGrantType(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())

	spy := &fakeVerifier{}
	f.engine.Authenticator = &GrantAuthenticator{Verifier: spy}

	_, err := f.engine.Issue(context.Background(), domain.GrantRequest{
		GrantType: domain.GrantType("carrier_pigeon"),
		Credentials: map[string]string{
			domain.CredUsername: f.user.Email,
			domain.CredPassword: testPassword,
		},
	})
	require.ErrorIs(t, err, ErrUnsupportedGrantType)

	// Rejected at the gate; no verification was ever attempted.
	require.Zero(t, spy.passwordCalls)
	require.Zero(t, spy.assertionCalls)
}

func TestEngineIssueDisabledGrantType(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	delete(f.engine.EnabledGrants, domain.GrantAssertion)

	_, err := f.engine.Issue(context.Background(), domain.GrantRequest{
		GrantType: domain.GrantAssertion,
		Credentials: map[string]string{
			domain.CredAssertionType: AssertionTOTP,
			domain.CredAssertion:     "x:y",
		},
	})
	require.ErrorIs(t, err, ErrUnsupportedGrantType)
}

func TestEngineReusePolicy(t *testing.T) {
	t.Run("enabled returns the same token twice", func(t *testing.T) {
		cfg := defaultPolicy()
		cfg.ReuseAccessToken = true
		f := newEngineFixture(t, cfg)
		ctx := context.Background()

		first, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
		require.NoError(t, err)

		second, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
		require.NoError(t, err)
		require.Equal(t, first.AccessToken, second.AccessToken)

		// The reused token still verifies and its remaining lifetime is
		// bounded by the original TTL.
		_, err = f.engine.Verifier.Verify(second.AccessToken)
		require.NoError(t, err)
		require.LessOrEqual(t, second.ExpiresIn, first.ExpiresIn)
	})

	t.Run("disabled mints a fresh token each time", func(t *testing.T) {
		f := newEngineFixture(t, defaultPolicy())
		ctx := context.Background()

		first, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
		require.NoError(t, err)
		second, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
		require.NoError(t, err)
		require.NotEqual(t, first.AccessToken, second.AccessToken)
	})
}

func TestEngineAssertionGrants(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	ctx := context.Background()

	t.Run("jwt bearer assertion", func(t *testing.T) {
		assertion, err := f.engine.Signer.Sign(jwtx.NewAccessClaims(
			f.user.ID, jwtx.EmbeddedUser{ID: f.user.ID}, nil, "",
			time.Minute, testIssuer, time.Now(),
		))
		require.NoError(t, err)

		pair, err := f.engine.Issue(ctx, domain.GrantRequest{
			GrantType: domain.GrantAssertion,
			Credentials: map[string]string{
				domain.CredAssertionType: AssertionJWT,
				domain.CredAssertion:     assertion,
			},
			ClientID: f.client.ID,
		})
		require.NoError(t, err)

		claims, err := f.engine.Verifier.Verify(pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, f.user.ID, claims.Subject)
	})

	t.Run("totp assertion", func(t *testing.T) {
		code, err := totp.GenerateCode(f.totpSecret, time.Now())
		require.NoError(t, err)

		pair, err := f.engine.Issue(ctx, domain.GrantRequest{
			GrantType: domain.GrantAssertion,
			Credentials: map[string]string{
				domain.CredAssertionType: AssertionTOTP,
				domain.CredAssertion:     f.user.Email + ":" + code,
			},
			ClientID: f.client.ID,
		})
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)
	})

	t.Run("unknown assertion type", func(t *testing.T) {
		_, err := f.engine.Issue(ctx, domain.GrantRequest{
			GrantType: domain.GrantAssertion,
			Credentials: map[string]string{
				domain.CredAssertionType: "saml",
				domain.CredAssertion:     "payload",
			},
		})
		require.ErrorIs(t, err, ErrUnsupportedGrantType)
	})

	t.Run("bad totp code", func(t *testing.T) {
		_, err := f.engine.Issue(ctx, domain.GrantRequest{
			GrantType: domain.GrantAssertion,
			Credentials: map[string]string{
				domain.CredAssertionType: AssertionTOTP,
				domain.CredAssertion:     f.user.Email + ":000000",
			},
		})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestEngineRefreshExchange(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	ctx := context.Background()

	pair, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)

	refreshReq := domain.GrantRequest{
		GrantType:   domain.GrantRefreshToken,
		Credentials: map[string]string{domain.CredRefreshToken: pair.RefreshToken},
		ClientID:    f.client.ID,
	}

	rotated, err := f.engine.Issue(ctx, refreshReq)
	require.NoError(t, err)
	require.NotEmpty(t, rotated.AccessToken)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	claims, err := f.engine.Verifier.Verify(rotated.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, claims.Subject)

	// The presented refresh token was rotated out.
	_, err = f.engine.Issue(ctx, refreshReq)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestEngineRefreshRejectsGarbage(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())

	_, err := f.engine.Issue(context.Background(), domain.GrantRequest{
		GrantType:   domain.GrantRefreshToken,
		Credentials: map[string]string{domain.CredRefreshToken: "never-issued"},
		ClientID:    f.client.ID,
	})
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestEngineRefreshBoundToClient(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	ctx := context.Background()

	pair, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
	require.NoError(t, err)

	other := domain.Client{ID: idx.New().String(), Name: "other"}
	require.NoError(t, f.store.Clients().CreateClient(ctx, other))

	_, err = f.engine.Issue(ctx, domain.GrantRequest{
		GrantType:   domain.GrantRefreshToken,
		Credentials: map[string]string{domain.CredRefreshToken: pair.RefreshToken},
		ClientID:    other.ID,
	})
	require.ErrorIs(t, err, ErrInvalidClient)
}

func TestEngineConfidentialClientAuthentication(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	ctx := context.Background()

	secretHash, err := cryptox.HashPassword("client-secret")
	require.NoError(t, err)
	confidential := domain.Client{ID: idx.New().String(), Name: "backend", SecretHash: secretHash}
	require.NoError(t, f.store.Clients().CreateClient(ctx, confidential))

	req := f.passwordRequest(testPassword)
	req.ClientID = confidential.ID

	_, err = f.engine.Issue(ctx, req)
	require.ErrorIs(t, err, ErrInvalidClient)

	req.ClientSecret = "wrong"
	_, err = f.engine.Issue(ctx, req)
	require.ErrorIs(t, err, ErrInvalidClient)

	req.ClientSecret = "client-secret"
	pair, err := f.engine.Issue(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestEngineUnknownClient(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())

	req := f.passwordRequest(testPassword)
	req.ClientID = "no-such-client"

	_, err := f.engine.Issue(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidClient)
}

func TestEngineRevoke(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	ctx := context.Background()

	pair, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
	require.NoError(t, err)

	require.NoError(t, f.engine.Revoke(ctx, pair.RefreshToken))

	// The refresh token is dead and the linked access record is revoked.
	_, err = f.engine.Issue(ctx, domain.GrantRequest{
		GrantType:   domain.GrantRefreshToken,
		Credentials: map[string]string{domain.CredRefreshToken: pair.RefreshToken},
		ClientID:    f.client.ID,
	})
	require.ErrorIs(t, err, ErrInvalidRefresh)

	_, err = f.store.AccessTokens().FindActiveAccessToken(ctx, f.client.ID, f.user.ID)
	require.Error(t, err)

	// Revoking something that was never issued still succeeds.
	require.NoError(t, f.engine.Revoke(ctx, "unknown-token"))
}

func TestEngineIntrospect(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	ctx := context.Background()

	pair, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
	require.NoError(t, err)

	claims, active := f.engine.Introspect(ctx, pair.AccessToken)
	require.True(t, active)
	require.Equal(t, f.user.ID, claims.Subject)

	_, active = f.engine.Introspect(ctx, "not.a.token")
	require.False(t, active)
}

// refreshFailStore delegates to the real store but fails every refresh-token
// write inside a transaction.
type refreshFailStore struct {
	store.Store
}

func (s *refreshFailStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&refreshFailTx{storeTx: tx})
	})
}

// storeTx aliases store.Tx so embedding it below does not create a field
// named Tx that would shadow the promoted Tx method required by the
// interface.
type storeTx = store.Tx

type refreshFailTx struct {
	storeTx
}

func (t *refreshFailTx) RefreshTokens() store.RefreshTokens { return failingRefreshTokens{} }

type failingRefreshTokens struct{}

func (failingRefreshTokens) CreateRefreshToken(context.Context, domain.RefreshToken) error {
	return store.ErrUnavailable
}

func (failingRefreshTokens) GetRefreshTokenByHash(context.Context, string) (domain.RefreshToken, error) {
	return domain.RefreshToken{}, store.ErrUnavailable
}

func (failingRefreshTokens) RevokeRefreshToken(context.Context, string) error {
	return store.ErrUnavailable
}

func (failingRefreshTokens) DeleteExpiredRefreshTokens(context.Context) error {
	return store.ErrUnavailable
}

func TestEngineIssueSurfacesRefreshPersistenceFailure(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	ctx := context.Background()

	f.engine.Store = &refreshFailStore{Store: f.store}

	pair, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.Nil(t, pair)

	// The transaction rolled back; no access record survives either, so a
	// later request cannot reuse a token nobody ever received.
	_, err = f.store.AccessTokens().FindActiveAccessToken(ctx, f.client.ID, f.user.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngineExternalTokenRecordWrittenAfterCommit(t *testing.T) {
	f := newEngineFixture(t, defaultPolicy())
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := redisdriver.NewAccessTokenCache(rdb, "guardian")

	f.engine.Tokens = cache
	f.engine.Policy.Tokens = cache
	f.engine.Store = &refreshFailStore{Store: f.store}

	// When the refresh insert fails the rollback must not leave a record
	// behind in the external store.
	_, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
	require.ErrorIs(t, err, store.ErrUnavailable)

	_, err = cache.FindActiveAccessToken(ctx, f.client.ID, f.user.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	// A healthy issue lands the record once the transaction has committed.
	f.engine.Store = f.store

	pair, err := f.engine.Issue(ctx, f.passwordRequest(testPassword))
	require.NoError(t, err)

	rec, err := cache.FindActiveAccessToken(ctx, f.client.ID, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, pair.AccessToken, rec.Token)
}
