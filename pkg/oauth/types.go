package oauth

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenType is assumed when the token endpoint omits token_type.
const DefaultTokenType = "Bearer"

// DefaultExpiryMargin is the default margin when checking token expiry.
// This accounts for clock skew and network latency.
const DefaultExpiryMargin = 30 * time.Second

// ServiceEndpoints are the provider URLs needed for the Authorization Code grant.
type ServiceEndpoints struct {
	// AuthorizationURI is where the user agent is sent to authorize the client.
	AuthorizationURI string

	// TokenURI is where codes and refresh tokens are exchanged for tokens.
	TokenURI string
}

// ClientCredentials identify the registered client application.
type ClientCredentials struct {
	ClientID     string
	ClientSecret Secret
}

// AuthorizationRequest describes one authorization round trip.
type AuthorizationRequest struct {
	// RedirectURI must match one registered with the provider.
	RedirectURI string

	// Scopes are requested in order; duplicates are dropped.
	Scopes []string

	// State is echoed back by the provider and binds the callback to this request.
	State string
}

// AuthorizationResult is what the provider delivers to the redirect URI.
// A code can be exchanged exactly once.
type AuthorizationResult struct {
	Code  string
	State string
}

// TokenSet is the result of a successful token request.
//
// A TokenSet is never modified after it is created; refreshing produces a
// new TokenSet that replaces the old one.
type TokenSet struct {
	// AccessToken is presented to the resource server.
	AccessToken string `json:"access_token"`

	// TokenType is "Bearer" for every provider this client supports.
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken is empty when the provider did not issue one.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the lifetime in seconds reported by the provider, 0 if absent.
	ExpiresIn int `json:"expires_in,omitempty"`

	// Scope is the granted scope, space-separated, when the provider reports it.
	Scope string `json:"scope,omitempty"`

	// IDToken is the OpenID Connect ID token, requested with the openid scope.
	IDToken string `json:"id_token,omitempty"`

	// ObtainedAt is when the token endpoint answered.
	ObtainedAt time.Time `json:"obtained_at,omitempty"`
}

// HasRefreshToken reports whether the set carries a refresh token.
func (t *TokenSet) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// ExpiresAt returns the absolute expiry, or the zero time when the provider
// did not report a lifetime.
func (t *TokenSet) ExpiresAt() time.Time {
	if t == nil || t.ExpiresIn <= 0 || t.ObtainedAt.IsZero() {
		return time.Time{}
	}
	return t.ObtainedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// IsExpired checks if the access token has expired or will expire within margin.
// Tokens without a known lifetime never expire locally.
func (t *TokenSet) IsExpired(margin time.Duration) bool {
	expiresAt := t.ExpiresAt()
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(expiresAt)
}

// Scopes returns the granted scope as a slice of individual scopes.
func (t *TokenSet) Scopes() []string {
	if t == nil || t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// AuthorizationHeader returns the value for the Authorization request header.
func (t *TokenSet) AuthorizationHeader() string {
	return "Bearer " + t.AccessToken
}

// withRefreshToken returns a copy of t carrying refreshToken.
func (t *TokenSet) withRefreshToken(refreshToken string) *TokenSet {
	clone := *t
	clone.RefreshToken = refreshToken
	return &clone
}

// OAuth2Token converts the set to an oauth2.Token for use with golang.org/x/oauth2.
func (t *TokenSet) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt(),
		ExpiresIn:    int64(t.ExpiresIn),
	}
	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}
	return token
}

// RefreshPolicy decides what happens to the previous refresh token when a
// refresh response does not carry a new one.
type RefreshPolicy string

const (
	// RefreshPolicyRetain keeps the previous refresh token. Providers that
	// reuse refresh tokens omit it from refresh responses.
	RefreshPolicyRetain RefreshPolicy = "retain"

	// RefreshPolicyRotate expects a new refresh token on every refresh and
	// drops the previous one when none is returned.
	RefreshPolicyRotate RefreshPolicy = "rotate"
)

// ParseRefreshPolicy parses a policy name. The empty string selects RefreshPolicyRetain.
func ParseRefreshPolicy(s string) (RefreshPolicy, error) {
	switch RefreshPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RefreshPolicyRetain:
		return RefreshPolicyRetain, nil
	case RefreshPolicyRotate:
		return RefreshPolicyRotate, nil
	default:
		return "", &ConfigError{Field: "refresh_policy", Reason: fmt.Sprintf("unknown policy %q", s)}
	}
}

// Apply builds the TokenSet that replaces previous after a refresh returned next.
func (p RefreshPolicy) Apply(previousRefreshToken string, next *TokenSet) *TokenSet {
	if next.RefreshToken != "" || p == RefreshPolicyRotate {
		return next
	}
	return next.withRefreshToken(previousRefreshToken)
}

// ClientAuthMethod selects how the client authenticates to the token endpoint.
type ClientAuthMethod string

const (
	// ClientSecretPost sends client_id and client_secret in the form body.
	ClientSecretPost ClientAuthMethod = "client_secret_post"

	// ClientSecretBasic sends the credentials with HTTP Basic authentication.
	ClientSecretBasic ClientAuthMethod = "client_secret_basic"
)

// ParseClientAuthMethod parses a method name. The empty string selects ClientSecretPost.
func ParseClientAuthMethod(s string) (ClientAuthMethod, error) {
	switch ClientAuthMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClientSecretPost:
		return ClientSecretPost, nil
	case ClientSecretBasic:
		return ClientSecretBasic, nil
	default:
		return "", &ConfigError{Field: "client_auth_method", Reason: fmt.Sprintf("unknown method %q", s)}
	}
}
