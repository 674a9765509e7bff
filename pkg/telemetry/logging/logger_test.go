package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"grokflow/guardrails/pkg/config"
)

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out string)
	}{
		{
			name:   "json",
			format: "json",
			check: func(t *testing.T, out string) {
				var entry map[string]any
				if err := json.Unmarshal([]byte(out), &entry); err != nil {
					t.Fatalf("output is not JSON: %v: %s", err, out)
				}
				if entry["msg"] != "constraint added" || entry["id"] != "a1b2c3d4" {
					t.Errorf("unexpected entry: %v", entry)
				}
			},
		},
		{
			name:   "text",
			format: "text",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, `msg="constraint added"`) || !strings.Contains(out, "id=a1b2c3d4") {
					t.Errorf("unexpected output: %s", out)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(Config{Level: "info", Format: tt.format, Writer: &buf})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			logger.Info("constraint added", "id", "a1b2c3d4")
			tt.check(t, buf.String())
		})
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn entry missing")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestNew_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{
		Level:     "debug",
		Format:    "json",
		RedactPII: true,
		Writer:    &buf,
		RedactPatterns: []config.RedactPattern{
			{Name: "ticket", Pattern: `TICKET-\d+`, Replacement: "TICKET-?"},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.With("api_token", "tok_123456789").Info("query checked",
		"query", "deploy with key sk-abcdefgh12345678 for TICKET-42",
		slog.Group("user", "email", "dev@example.com"),
	)

	out := buf.String()
	for _, secret := range []string{"sk-abcdefgh12345678", "tok_123456789", "dev@example.com", "TICKET-42"} {
		if strings.Contains(out, secret) {
			t.Errorf("output contains %q: %s", secret, out)
		}
	}
	for _, kept := range []string{"deploy with key", "tok_***", "[email]", "TICKET-?"} {
		if !strings.Contains(out, kept) {
			t.Errorf("output missing %q: %s", kept, out)
		}
	}
}

func TestNew_NoRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("query", "email", "dev@example.com")
	if !strings.Contains(buf.String(), "dev@example.com") {
		t.Error("value redacted with RedactPII disabled")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Telemetry.Logging
	got := FromConfig(cfg)
	if got.Level != cfg.Level || got.Format != cfg.Format || got.RedactPII != cfg.RedactPII {
		t.Errorf("FromConfig() = %+v", got)
	}
	if got.Writer != nil {
		t.Error("expected writer to default later")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"WARNING", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
