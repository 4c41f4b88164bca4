package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fanlv/chat-room/pkg/auth"
)

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("listen_addr: \":9000\"\nsecret: \"supersecret\"\nno_tls: true\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.Secret != "supersecret" || !cfg.NoTLS {
		t.Fatalf("LoadConfig: overrides not applied: %+v", cfg)
	}
	// Untouched fields keep their defaults.
	if cfg.OpsAddr != ":5859" || cfg.LogLevel != "info" {
		t.Fatalf("LoadConfig: defaults lost: %+v", cfg)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("LoadConfig: missing file accepted")
	}
}

func TestConfigChecker(t *testing.T) {
	cfg := DefaultConfig()
	checker, err := cfg.Checker()
	if err != nil {
		t.Fatalf("Checker: %v", err)
	}
	if !checker.Check("666666") {
		t.Fatalf("Checker: default shared secret rejected")
	}

	// secret_hash takes precedence over the plain secret.
	hash, err := auth.HashSecret("hashed-secret")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	cfg.SecretHash = hash
	checker, err = cfg.Checker()
	if err != nil {
		t.Fatalf("Checker: %v", err)
	}
	if checker.Check("666666") || !checker.Check("hashed-secret") {
		t.Fatalf("Checker: secret_hash did not take precedence")
	}
}

func TestConfigCheckerMalformedHash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecretHash = "not-a-hash"
	if _, err := cfg.Checker(); err == nil {
		t.Fatalf("Checker: malformed secret_hash accepted")
	}
}
