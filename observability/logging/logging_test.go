package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupWithOptionsWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions("escrow-gateway", "test", Options{Level: "debug", Output: &buf})
	logger.Debug("escrow released", slog.String("escrowId", "0xab"), MaskField("apiSecret", "hunter2"))

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if decoded["severity"] != "DEBUG" || decoded["message"] != "escrow released" {
		t.Fatalf("unexpected envelope %v", decoded)
	}
	if decoded["service"] != "escrow-gateway" || decoded["env"] != "test" {
		t.Fatalf("missing service attributes %v", decoded)
	}
	if decoded["escrowId"] != "0xab" {
		t.Fatalf("allowlisted field altered: %v", decoded["escrowId"])
	}
	if decoded["apiSecret"] != RedactedValue {
		t.Fatalf("secret not masked: %v", decoded["apiSecret"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestInfoLevelDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions("svc", "", Options{Output: &buf})
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line emitted at info level: %s", buf.String())
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("EscrowID", "0x01").Value.String(); got != "0x01" {
		t.Fatalf("plain key masked: %s", got)
	}
	if got := MaskField("apiKey", "k-123").Value.String(); got != RedactedValue {
		t.Fatalf("api key leaked: %s", got)
	}
	if got := MaskField("apiKey", "").Value.String(); got != "" {
		t.Fatalf("empty value rewritten: %s", got)
	}
}

func TestPrincipalMasksAPIKeys(t *testing.T) {
	if got := Principal("key:secret").Value.String(); got != "key:"+RedactedValue {
		t.Fatalf("api key principal leaked: %s", got)
	}
	if got := Principal("sub:0xabc").Value.String(); got != "sub:0xabc" {
		t.Fatalf("subject principal altered: %s", got)
	}
}
