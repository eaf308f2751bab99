package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentryfab/sentryfab/internal/protocol"
)

func TestBuildServerConfigFromPositionalArgs(t *testing.T) {
	rc, err := buildServerConfig("", []string{"10.0.0.2", "9100", "9200", "SS"})
	if err != nil {
		t.Fatalf("buildServerConfig: %v", err)
	}
	if rc.peerHost != "10.0.0.2" || rc.p2pPort != 9100 || rc.clientPort != 9200 || rc.role != protocol.RoleStatus {
		t.Fatalf("unexpected config: %+v", rc)
	}
}

func TestBuildServerConfigInvalidRole(t *testing.T) {
	if _, err := buildServerConfig("", []string{"10.0.0.2", "9100", "9200", "XX"}); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestBuildServerConfigWrongArgCount(t *testing.T) {
	if _, err := buildServerConfig("", []string{"10.0.0.2", "9100"}); err == nil {
		t.Fatal("expected error for missing positional arguments")
	}
}

func TestBuildServerConfigMergesAmbientSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentryfab.yaml")
	contents := "checkalert_timeout: 7s\nlisten_backlog: 12\ntelemetry:\n  audit:\n    enabled: true\n  metrics:\n    enabled: true\n"
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	rc, err := buildServerConfig(path, []string{"10.0.0.2", "9100", "9200", "SL"})
	if err != nil {
		t.Fatalf("buildServerConfig: %v", err)
	}
	if rc.checkAlertTimeout != 7*time.Second {
		t.Errorf("checkAlertTimeout = %v, want 7s", rc.checkAlertTimeout)
	}
	if rc.listenBacklog != 12 {
		t.Errorf("listenBacklog = %d, want 12", rc.listenBacklog)
	}
	if !rc.audit {
		t.Error("expected audit enabled")
	}
	if rc.metricsListenAddr == "" {
		t.Error("expected metrics listen address to be set")
	}
	// CLI positionals still win over anything the file could have named.
	if rc.peerHost != "10.0.0.2" || rc.role != protocol.RoleLocation {
		t.Errorf("CLI positional arguments were not authoritative: %+v", rc)
	}
}

func TestReorderArgsMovesFlagsBeforePositionals(t *testing.T) {
	got := reorderArgs([]string{"10.0.0.2", "9100", "9200", "SS", "--config", "c.yaml"}, nil)
	want := []string{"--config", "c.yaml", "10.0.0.2", "9100", "9200", "SS"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
