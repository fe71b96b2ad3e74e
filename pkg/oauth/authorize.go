package oauth

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultScopeDelimiter joins scopes in the authorization request (RFC 6749 section 3.3).
const DefaultScopeDelimiter = " "

// reservedParams are set by BuildAuthorizationURL and cannot be overridden.
var reservedParams = map[string]bool{
	"response_type": true,
	"client_id":     true,
	"redirect_uri":  true,
	"scope":         true,
	"state":         true,
}

type authURLOptions struct {
	scopeDelimiter string
	extra          url.Values
}

// AuthURLOption customizes BuildAuthorizationURL.
type AuthURLOption func(*authURLOptions)

// WithScopeDelimiter joins scopes with delimiter instead of a space, for
// providers that expect e.g. comma-separated scopes.
func WithScopeDelimiter(delimiter string) AuthURLOption {
	return func(o *authURLOptions) {
		if delimiter != "" {
			o.scopeDelimiter = delimiter
		}
	}
}

// WithAuthURLParam adds a provider-specific query parameter such as prompt
// or login_hint.
func WithAuthURLParam(key, value string) AuthURLOption {
	return func(o *authURLOptions) {
		o.extra.Set(key, value)
	}
}

// BuildAuthorizationURL constructs the provider authorization URL for req.
//
// The URL carries response_type=code, client_id, redirect_uri, scope and
// state exactly once each. Query parameters already present on the
// authorization endpoint are preserved. scope is sent empty when req has no
// scopes.
func BuildAuthorizationURL(endpoints ServiceEndpoints, creds ClientCredentials, req AuthorizationRequest, opts ...AuthURLOption) (string, error) {
	options := authURLOptions{
		scopeDelimiter: DefaultScopeDelimiter,
		extra:          url.Values{},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if creds.ClientID == "" {
		return "", &ConfigError{Field: "client_id", Reason: "must not be empty"}
	}
	if req.RedirectURI == "" {
		return "", &ConfigError{Field: "redirect_uri", Reason: "must not be empty"}
	}
	if req.State == "" {
		return "", &ConfigError{Field: "state", Reason: "must not be empty"}
	}

	authURL, err := parseAbsoluteURL("authorization_uri", endpoints.AuthorizationURI)
	if err != nil {
		return "", err
	}
	if _, err := parseAbsoluteURL("redirect_uri", req.RedirectURI); err != nil {
		return "", err
	}

	query := authURL.Query()
	for key, values := range options.extra {
		if reservedParams[key] {
			return "", &ConfigError{Field: key, Reason: "cannot be overridden by an extra parameter"}
		}
		query[key] = values
	}

	query.Set("response_type", "code")
	query.Set("client_id", creds.ClientID)
	query.Set("redirect_uri", req.RedirectURI)
	query.Set("state", req.State)
	query.Set("scope", JoinScopes(req.Scopes, options.scopeDelimiter))

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}

// JoinScopes joins scopes with delimiter, keeping the first occurrence of
// each scope and skipping blanks.
func JoinScopes(scopes []string, delimiter string) string {
	seen := make(map[string]bool, len(scopes))
	ordered := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" || seen[scope] {
			continue
		}
		seen[scope] = true
		ordered = append(ordered, scope)
	}
	return strings.Join(ordered, delimiter)
}

func parseAbsoluteURL(field, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, &ConfigError{Field: field, Reason: "must not be empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("is not a valid URL: %v", err)}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &ConfigError{Field: field, Reason: "must be an absolute URL"}
	}
	return u, nil
}
