package config

import (
	"fmt"
	"net/url"
	"strings"

	"echoauth/pkg/logging"
	"echoauth/pkg/oauth"
)

// Validate checks the configuration and returns an *oauth.ConfigError
// naming the first invalid field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return &oauth.ConfigError{Field: "client_id", Reason: "must not be empty"}
	}

	for _, field := range []struct{ name, value string }{
		{"authorization_uri", c.AuthorizationURI},
		{"token_uri", c.TokenURI},
		{"redirect_uri", c.RedirectURI},
	} {
		if err := validateURL(field.name, field.value); err != nil {
			return err
		}
	}
	if c.ResourceURL != "" {
		if err := validateURL("resource_url", c.ResourceURL); err != nil {
			return err
		}
	}

	if c.CallbackTimeout <= 0 {
		return &oauth.ConfigError{Field: "callback_timeout", Reason: "must be positive"}
	}
	if c.HTTPTimeout <= 0 {
		return &oauth.ConfigError{Field: "http_timeout", Reason: "must be positive"}
	}

	if _, err := oauth.ParseRefreshPolicy(c.RefreshPolicy); err != nil {
		return err
	}
	if _, err := oauth.ParseClientAuthMethod(c.ClientAuthMethod); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return &oauth.ConfigError{Field: "log_level", Reason: err.Error()}
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return &oauth.ConfigError{Field: "log_format", Reason: err.Error()}
	}
	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return &oauth.ConfigError{Field: field, Reason: "must not be empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &oauth.ConfigError{Field: field, Reason: fmt.Sprintf("is not a valid URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &oauth.ConfigError{Field: field, Reason: "must be an http or https URL"}
	}
	if u.Host == "" {
		return &oauth.ConfigError{Field: field, Reason: "must be an absolute URL"}
	}
	return nil
}
