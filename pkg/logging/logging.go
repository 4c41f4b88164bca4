// Package logging configures structured logging for the chat-room binaries.
//
// Server and client both log through Go's standard log/slog. Call Setup once
// early in main, then log with the package-level slog helpers:
//
//	logging.Setup(logging.Options{Level: "debug"})
//	slog.Info("client authenticated", "user", name)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how the global logger is configured.
type Options struct {
	Level  string    // "debug", "info", "warn", "error" (default "info")
	Format string    // "text" or "json" (default "text")
	Output io.Writer // defaults to os.Stdout
}

// ParseLevel maps a level name to slog.Level, defaulting to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate returns an error if the level name is not recognized.
func Validate(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", level)
}

// LevelNames returns the accepted level names, for flag help text.
func LevelNames() string {
	return "debug, info, warn, error"
}

// Setup installs the global slog logger. Debug level also records source
// positions.
func Setup(opts Options) error {
	if err := Validate(opts.Level); err != nil {
		return err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
