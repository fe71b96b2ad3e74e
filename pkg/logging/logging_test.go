package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.level.String()
		if result != test.expected {
			t.Errorf("LogLevel(%d).String() = %s, expected %s", test.level, result, test.expected)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo}, // Default for unknown
	}

	for _, test := range tests {
		result := test.level.SlogLevel()
		if result != test.expected {
			t.Errorf("LogLevel(%d).SlogLevel() = %v, expected %v", test.level, result, test.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, test := range tests {
		got, err := ParseLevel(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", test.input, err, test.wantErr)
		}
		if got != test.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", test.input, got, test.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestInitForCLI(t *testing.T) {
	var buf bytes.Buffer

	InitForCLI(LevelInfo, &buf)

	if defaultLogger == nil {
		t.Error("Expected defaultLogger to be set after InitForCLI")
	}

	Info("test-subsystem", "test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Error("Expected log message to appear in CLI output")
	}

	if !strings.Contains(output, "test-subsystem") {
		t.Error("Expected subsystem to appear in CLI output")
	}
}

func TestCLILevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	InitForCLI(LevelInfo, &buf)

	// Debug should be filtered out
	Debug("test", "debug message")

	// Info should appear
	Info("test", "info message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("Debug message should be filtered out at INFO level")
	}

	if !strings.Contains(output, "info message") {
		t.Error("Info message should appear at INFO level")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, FormatJSON, &buf)

	Error("Session", errors.New("boom"), "refresh failed after %d attempt", 1)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "refresh failed after 1 attempt" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["subsystem"] != "Session" {
		t.Errorf("unexpected subsystem %v", entry["subsystem"])
	}
	if entry["error"] != "boom" {
		t.Errorf("unexpected error %v", entry["error"])
	}
}

func TestLoggerCarriesSubsystem(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf)

	Logger("Exchanger").Debug("Token request succeeded", "grant_type", "refresh_token")

	output := buf.String()
	if !strings.Contains(output, "subsystem=Exchanger") {
		t.Errorf("expected subsystem attribute, got %q", output)
	}
	if !strings.Contains(output, "grant_type=refresh_token") {
		t.Errorf("expected grant_type attribute, got %q", output)
	}
}

func TestAudit(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	Audit(AuditEvent{
		Action:  "token_exchange",
		Outcome: "success",
		FlowID:  "3f1c",
		Target:  "https://idp.example.com/token",
	})

	output := buf.String()
	for _, want := range []string{"[AUDIT] token_exchange", "outcome=success", "flow_id=3f1c", "target=https://idp.example.com/token"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in audit output %q", want, output)
		}
	}
	if strings.Contains(output, "details=") {
		t.Error("empty details should be omitted")
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint("") != "<none>" {
		t.Errorf("unexpected fingerprint for empty token: %s", Fingerprint(""))
	}

	a := Fingerprint("tok1")
	b := Fingerprint("tok2")
	if a == b {
		t.Error("different tokens should have different fingerprints")
	}
	if a != Fingerprint("tok1") {
		t.Error("fingerprint should be stable")
	}
	if strings.Contains(a, "tok1") {
		t.Error("fingerprint must not contain the token")
	}
	if len(a) != len("sha256:")+8 {
		t.Errorf("unexpected fingerprint length: %s", a)
	}
}
