package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/fanlv/chat-room/pkg/auth"
	"github.com/fanlv/chat-room/pkg/logging"
	"github.com/fanlv/chat-room/pkg/server"
	"github.com/fanlv/chat-room/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (flags override its values)")
	hashSecret := flag.String("hash-secret", "", "Print the argon2id hash for a secret and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")

	cfg := server.DefaultConfig()
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Chat bind address")
	flag.StringVar(&cfg.OpsAddr, "ops", cfg.OpsAddr, "HTTP bind address for /metrics and /healthz (empty to disable)")
	flag.StringVar(&cfg.CertFile, "cert", "", "TLS certificate file (auto-generated if empty)")
	flag.StringVar(&cfg.KeyFile, "key", "", "TLS private key file (auto-generated if empty)")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory for generated files")
	flag.BoolVar(&cfg.NoTLS, "no-tls", false, "Serve plain ws:// without TLS")
	flag.StringVar(&cfg.Secret, "secret", cfg.Secret, "Shared login secret")
	flag.StringVar(&cfg.ArchivePath, "archive", "", "SQLite message archive path (empty to disable)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: "+logging.LevelNames())
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println("chat-room server " + version.Full())
		return
	}
	if *hashSecret != "" {
		hash, err := auth.HashSecret(*hashSecret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	if *configPath != "" {
		fileCfg, err := server.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		// Re-apply flags so explicitly set ones override the file.
		cfg = fileCfg
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "listen":
				cfg.ListenAddr = f.Value.String()
			case "ops":
				cfg.OpsAddr = f.Value.String()
			case "cert":
				cfg.CertFile = f.Value.String()
			case "key":
				cfg.KeyFile = f.Value.String()
			case "data":
				cfg.DataDir = f.Value.String()
			case "no-tls":
				cfg.NoTLS = f.Value.String() == "true"
			case "secret":
				cfg.Secret = f.Value.String()
			case "archive":
				cfg.ArchivePath = f.Value.String()
			case "log-level":
				cfg.LogLevel = f.Value.String()
			case "log-format":
				cfg.LogFormat = f.Value.String()
			}
		})
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	slog.Info("starting chat-room server", "version", version.String())

	srv, err := server.New(cfg)
	if err != nil {
		slog.Error("configure server", "err", err)
		os.Exit(1)
	}
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
