package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"echoauth/internal/config"
	"echoauth/internal/session"
	"echoauth/internal/tokenstore"
	"echoauth/pkg/logging"
)

// clientEnv bundles what every command needs.
type clientEnv struct {
	cfg     config.Config
	store   *tokenstore.Store
	session *session.Session
}

// loadConfig loads the configuration and applies its logging settings.
// Commands that only inspect local files skip validation.
func loadConfig(cmd *cobra.Command, validate bool) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: configPath, EnvFile: envFilePath})
	if err != nil {
		return config.Config{}, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	if err := initLogging(cmd, cfg.LogLevel, cfg.LogFormat); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openStore(cfg config.Config) (*tokenstore.Store, error) {
	return tokenstore.New(tokenstore.Config{Dir: cfg.TokenDir})
}

// setup loads a validated configuration and builds an unauthenticated
// session that persists its tokens to the store.
func setup(cmd *cobra.Command) (*clientEnv, error) {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(session.Options{
		Endpoints:        cfg.Endpoints(),
		Credentials:      cfg.Credentials(),
		RedirectURI:      cfg.RedirectURI,
		Scopes:           cfg.Scopes,
		ScopeDelimiter:   cfg.ScopeDelimiter,
		RefreshPolicy:    cfg.Policy(),
		ClientAuthMethod: cfg.AuthMethod(),
		HTTPClient:       &http.Client{Timeout: cfg.HTTPTimeout},
		Store:            store,
	})
	if err != nil {
		return nil, err
	}
	logging.Debug("CLI", "Using token store %s", store.Dir())
	return &clientEnv{cfg: cfg, store: store, session: sess}, nil
}

// resume installs the stored tokens for the configured client.
func (e *clientEnv) resume() error {
	record, err := e.store.Load(e.session.Key())
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return fmt.Errorf("%w for client %s at %s; run: echoauth login", err, e.cfg.ClientID, e.cfg.TokenURI)
		}
		return err
	}
	logging.Debug("CLI", "Resuming tokens saved at %s", record.SavedAt.Format(time.RFC3339))
	return e.session.Resume(record.Tokens)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiry formats an expiry time as "in X" or "expired X ago".
// A zero time means the provider did not report a lifetime.
func formatExpiry(expiresAt, now time.Time) string {
	if expiresAt.IsZero() {
		return "unknown"
	}
	remaining := expiresAt.Sub(now)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}
