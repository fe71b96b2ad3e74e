// Package logging provides the structured logging facade used by echoauth.
//
// It is built on Go's standard slog package and adds subsystem tagging,
// printf-style helpers and audit events for token operations.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Config", "Loaded configuration from %s", path)
//	logging.Debug("Callback", "Listening on %s", addr)
//	logging.Error("Session", err, "Token refresh failed")
//
// Libraries that take a *slog.Logger option can be handed a tagged logger:
//
//	exchanger, err := oauth.NewExchanger(endpoints, creds,
//	    oauth.WithLogger(logging.Logger("Exchanger")))
//
// # Subsystems
//
//   - **Config**: configuration loading and validation
//   - **Callback**: the local redirect listener
//   - **Session**: login, refresh and authenticated requests
//   - **Exchanger**: token endpoint requests
//   - **TokenStore**: persisted token files
//   - **CLI**: command execution
//
// # Audit Logging
//
//	logging.Audit(logging.AuditEvent{
//	    Action:  "token_refresh",
//	    Outcome: "success",
//	    FlowID:  flowID,
//	    Target:  tokenURI,
//	})
//
// Audit events are logged at INFO level with an [AUDIT] prefix. Token values,
// authorization codes and state parameters never appear in any log line; use
// Fingerprint when two tokens must be told apart.
package logging
