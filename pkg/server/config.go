package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fanlv/chat-room/pkg/auth"
)

// Config holds server configuration. Values come from a YAML file, CLI flags,
// or both; flags win.
type Config struct {
	ListenAddr string `yaml:"listen_addr"` // chat bind address (e.g. ":5858")
	OpsAddr    string `yaml:"ops_addr"`    // HTTP bind address for /metrics and /healthz (empty = disabled)

	CertFile string `yaml:"cert_file"` // TLS certificate path (auto-generated if empty)
	KeyFile  string `yaml:"key_file"`  // TLS private key path (auto-generated if empty)
	DataDir  string `yaml:"data_dir"`  // directory for generated cert material
	NoTLS    bool   `yaml:"no_tls"`    // serve plain ws:// (local runs and tests)

	// Secret is the shared login secret checked with a plain equality test.
	// SecretHash, when set, takes precedence and holds an argon2id "salt:key"
	// pair so the plaintext never appears in config.
	Secret     string `yaml:"secret"`
	SecretHash string `yaml:"secret_hash"`

	ArchivePath string `yaml:"archive_path"` // SQLite message archive (empty = disabled)

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":5858",
		OpsAddr:    ":5859",
		DataDir:    ".",
		Secret:     "666666",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return cfg, fmt.Errorf("server: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("server: parse config: %w", err)
	}
	return cfg, nil
}

// Checker builds the password checker the login handler uses.
func (c Config) Checker() (auth.Checker, error) {
	if c.SecretHash != "" {
		checker, err := auth.ParseSecretHash(c.SecretHash)
		if err != nil {
			return nil, fmt.Errorf("server: secret_hash: %w", err)
		}
		return checker, nil
	}
	return auth.SharedSecret(c.Secret), nil
}
