package domain

// GrantType enumerates the OAuth2 grant flows the token endpoint understands.
// Which of them are actually enabled is decided by configuration; anything
// outside the enabled set is rejected before any credential lookup happens.
type GrantType string

const (
	GrantPassword          GrantType = "password"
	GrantAssertion         GrantType = "assertion"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantImplicit          GrantType = "implicit"
)

// KnownGrantTypes is the set a configuration may enable.
var KnownGrantTypes = map[GrantType]struct{}{
	GrantPassword:          {},
	GrantAssertion:         {},
	GrantRefreshToken:      {},
	GrantAuthorizationCode: {},
	GrantClientCredentials: {},
	GrantImplicit:          {},
}

// Credential field keys used in GrantRequest.Credentials.
const (
	CredUsername      = "username"
	CredPassword      = "password"
	CredAssertionType = "assertion_type"
	CredAssertion     = "assertion"
	CredRefreshToken  = "refresh_token"
)

// GrantRequest is one inbound token request. It is built once from the form
// body and treated as read-only afterwards.
type GrantRequest struct {
	GrantType GrantType

	// Credentials holds grant-specific fields (username/password for the
	// password grant, assertion_type/assertion for assertions, ...).
	Credentials map[string]string

	// ClientID and ClientSecret identify the requesting application.
	// Secret is empty for public clients.
	ClientID     string
	ClientSecret string
}

// Credential returns a named credential field, empty when absent.
func (r GrantRequest) Credential(key string) string {
	return r.Credentials[key]
}
