// Package oauth implements the client side of the OAuth 2.0 Authorization
// Code grant (RFC 6749 section 4.1) with refresh tokens.
//
// The package is deliberately free of process-wide state. Callers describe
// the provider with ServiceEndpoints and ClientCredentials, build the
// authorization URL with BuildAuthorizationURL and trade the code delivered
// to the redirect URI for tokens with an Exchanger.
//
// # Core Components
//
//   - ServiceEndpoints / ClientCredentials: static provider configuration
//   - AuthorizationRequest / AuthorizationResult: one authorization round trip
//   - TokenSet: the tokens returned by the token endpoint
//   - Exchanger: authorization_code and refresh_token grants
//   - Secret: a string wrapper that never prints its value
//
// # Errors
//
// Failures are reported with typed errors so callers can decide what is
// recoverable:
//
//   - *ConfigError: missing or invalid static configuration
//   - *CallbackTimeoutError: no redirect arrived in time
//   - *StateMismatchError: the callback state differs from the issued one
//   - *AuthorizationDeniedError: the provider redirected with error=...
//   - *AuthServerError: the token endpoint answered with a non-2xx status
//   - *MalformedResponseError: the token endpoint answered with unusable JSON
//
// Transport failures are returned wrapped but otherwise untouched. Nothing in
// this package retries on its own.
//
// # Usage
//
//	endpoints := oauth.ServiceEndpoints{
//	    AuthorizationURI: "https://idp.example.com/as/authorization.oauth2",
//	    TokenURI:         "https://idp.example.com/as/token.oauth2",
//	}
//	creds := oauth.ClientCredentials{ClientID: "id", ClientSecret: oauth.NewSecret("secret")}
//
//	authURL, err := oauth.BuildAuthorizationURL(endpoints, creds, oauth.AuthorizationRequest{
//	    RedirectURI: "http://127.0.0.1:5432/oauth2client",
//	    Scopes:      []string{"read", "openid"},
//	    State:       state,
//	})
//
//	exchanger, err := oauth.NewExchanger(endpoints, creds)
//	tokens, err := exchanger.ExchangeCode(ctx, result, redirectURI)
package oauth
