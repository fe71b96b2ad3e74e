package config

import (
	"time"

	"echoauth/internal/callback"
	"echoauth/pkg/oauth"
)

// Config is the complete client configuration.
type Config struct {
	ClientID     string `yaml:"clientId" env:"CLIENT_ID"`
	ClientSecret string `yaml:"clientSecret" env:"CLIENT_SECRET"`

	AuthorizationURI string   `yaml:"authorizationUri" env:"AUTHORIZATION_URI"`
	TokenURI         string   `yaml:"tokenUri" env:"TOKEN_URI"`
	RedirectURI      string   `yaml:"redirectUri" env:"REDIRECT_URI"`
	Scopes           []string `yaml:"scopes" env:"SCOPES" envSeparator:","`
	ScopeDelimiter   string   `yaml:"scopeDelimiter,omitempty" env:"SCOPE_DELIMITER"`

	CallbackTimeout time.Duration `yaml:"callbackTimeout" env:"CALLBACK_TIMEOUT"`
	HTTPTimeout     time.Duration `yaml:"httpTimeout" env:"HTTP_TIMEOUT"`

	// RefreshPolicy is "retain" or "rotate".
	RefreshPolicy string `yaml:"refreshPolicy" env:"REFRESH_POLICY"`
	// ClientAuthMethod is "client_secret_post" or "client_secret_basic".
	ClientAuthMethod string `yaml:"clientAuthMethod" env:"CLIENT_AUTH_METHOD"`

	// TokenDir overrides the token store directory.
	TokenDir string `yaml:"tokenDir,omitempty" env:"TOKEN_DIR"`

	// ResourceURL is the default target of get and post.
	ResourceURL string `yaml:"resourceUrl" env:"RESOURCE_URL"`

	LogLevel  string `yaml:"logLevel" env:"LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" env:"LOG_FORMAT"`
}

// Default returns the configuration used when nothing else is set. It
// targets the Columbia University demo provider and echo API; credentials
// have no default.
func Default() Config {
	return Config{
		AuthorizationURI: "https://oauth.cc.columbia.edu/as/authorization.oauth2",
		TokenURI:         "https://oauth.cc.columbia.edu/as/token.oauth2",
		RedirectURI:      "http://127.0.0.1:5432/oauth2client",
		Scopes:           []string{"auth-google", "read", "openid"},
		CallbackTimeout:  callback.DefaultTimeout,
		HTTPTimeout:      oauth.DefaultHTTPTimeout,
		RefreshPolicy:    string(oauth.RefreshPolicyRetain),
		ClientAuthMethod: string(oauth.ClientSecretPost),
		ResourceURL:      "https://columbia-demo-echo.cloudhub.io/v1/api/things",
		LogLevel:         "warn",
		LogFormat:        "text",
	}
}

// Endpoints returns the provider endpoints.
func (c Config) Endpoints() oauth.ServiceEndpoints {
	return oauth.ServiceEndpoints{
		AuthorizationURI: c.AuthorizationURI,
		TokenURI:         c.TokenURI,
	}
}

// Credentials returns the client credentials with the secret wrapped.
func (c Config) Credentials() oauth.ClientCredentials {
	return oauth.ClientCredentials{
		ClientID:     c.ClientID,
		ClientSecret: oauth.NewSecret(c.ClientSecret),
	}
}

// Policy returns the parsed refresh policy. Call Validate first; an
// invalid value yields the default.
func (c Config) Policy() oauth.RefreshPolicy {
	policy, err := oauth.ParseRefreshPolicy(c.RefreshPolicy)
	if err != nil {
		return oauth.RefreshPolicyRetain
	}
	return policy
}

// AuthMethod returns the parsed client authentication method. Call
// Validate first; an invalid value yields the default.
func (c Config) AuthMethod() oauth.ClientAuthMethod {
	method, err := oauth.ParseClientAuthMethod(c.ClientAuthMethod)
	if err != nil {
		return oauth.ClientSecretPost
	}
	return method
}
