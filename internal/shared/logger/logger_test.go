package logger

import (
	"bytes"
	"strings"
	"testing"

	"olxscout/internal/shared/types"
)

func TestInitWithWriter_LevelAndComponent(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(types.LogConf{Level: "warn", NoColor: true}, &buf); err != nil {
		t.Fatalf("InitWithWriter() returned an error: %v", err)
	}

	Info().Msg("hidden message")
	l := WithComponent("ProxyPool")
	l.Warn().Str("proxy_id", "10.0.0.1:8080").Msg("Proxy quarantined.")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("Expected info to be filtered at warn level, got %q", out)
	}
	for _, want := range []string{"Proxy quarantined.", "component=ProxyPool", "proxy_id=10.0.0.1:8080"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got %q", want, out)
		}
	}
}

func TestInitWithWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(types.LogConf{Level: "chatty", NoColor: true}, &buf); err != nil {
		t.Fatalf("InitWithWriter() returned an error: %v", err)
	}
	Debug().Msg("debug line")
	Info().Str("market", "pl").Msg("info line")

	out := buf.String()
	if strings.Contains(out, "debug line") {
		t.Errorf("Expected debug to be filtered, got %q", out)
	}
	if !strings.Contains(out, "info line") || !strings.Contains(out, "market=pl") {
		t.Errorf("Expected info line with field, got %q", out)
	}
}
