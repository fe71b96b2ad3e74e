package logging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// AuditEvent records a security-relevant token operation.
//
// Never put token values, codes or state parameters into an AuditEvent.
type AuditEvent struct {
	// Action is what happened, e.g. "token_exchange" or "token_refresh".
	Action string

	// Outcome is "success" or "failure".
	Outcome string

	// FlowID correlates the events of one authorization flow.
	FlowID string

	// Target is the token endpoint or storage location involved.
	Target string

	// Details is free-form context, such as an error code.
	Details string
}

// Audit logs an audit event at INFO level with an [AUDIT] prefix.
func Audit(event AuditEvent) {
	logger := current()
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		return
	}

	attrs := []slog.Attr{
		slog.String("subsystem", "Audit"),
		slog.String("action", event.Action),
		slog.String("outcome", event.Outcome),
	}
	if event.FlowID != "" {
		attrs = append(attrs, slog.String("flow_id", event.FlowID))
	}
	if event.Target != "" {
		attrs = append(attrs, slog.String("target", event.Target))
	}
	if event.Details != "" {
		attrs = append(attrs, slog.String("details", event.Details))
	}

	logger.LogAttrs(context.Background(), slog.LevelInfo, "[AUDIT] "+event.Action, attrs...)
}

// Fingerprint returns a short, non-reversible tag for a token so that log
// readers and users can tell two tokens apart without seeing either.
func Fingerprint(token string) string {
	if token == "" {
		return "<none>"
	}
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:4])
}
