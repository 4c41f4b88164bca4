package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fanlv/chat-room/pkg/client"
	"github.com/fanlv/chat-room/pkg/logging"
	"github.com/fanlv/chat-room/pkg/model"
	"github.com/fanlv/chat-room/pkg/version"
)

func main() {
	cfg := client.Config{}
	flag.StringVar(&cfg.ServerAddr, "server", "localhost:5858", "Server address (host:port)")
	flag.StringVar(&cfg.UserName, "name", "", "User name (required)")
	flag.StringVar(&cfg.Password, "password", "666666", "Login password")
	flag.Int64Var(&cfg.RoomID, "room", 1, "Chat room id")
	flag.StringVar(&cfg.CACert, "ca", "", "CA certificate to trust (PEM)")
	flag.BoolVar(&cfg.Insecure, "insecure", false, "Skip TLS certificate verification")
	flag.BoolVar(&cfg.NoTLS, "no-tls", false, "Connect over plain ws:// without TLS")
	logLevel := flag.String("log-level", "warn", "Log level: "+logging.LevelNames())
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("chat-room client " + version.Full())
		return
	}
	if cfg.UserName == "" {
		fmt.Fprintln(os.Stderr, "missing -name: a user name is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: "text",
		Output: os.Stderr,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	engine := client.NewEngine(cfg)
	engine.OnStatus = func(line string) {
		fmt.Println("* " + line)
	}
	engine.OnMessage = func(msg model.Message) {
		fmt.Printf("[%s] %s: %s\n", stamp(msg.Time), msg.User.UserName, msg.Content)
	}
	engine.OnHistory = func(messages []model.Message) {
		if len(messages) == 0 {
			return
		}
		fmt.Printf("--- last %d message(s) ---\n", len(messages))
		for _, msg := range messages {
			fmt.Printf("[%s] %s: %s\n", stamp(msg.Time), msg.User.UserName, msg.Content)
		}
		fmt.Println("---")
	}
	engine.OnRoster = func(users []model.User) {
		names := make([]string, len(users))
		for i, u := range users {
			names[i] = u.UserName
		}
		fmt.Printf("* online (%d): %s\n", len(users), strings.Join(names, ", "))
	}
	engine.OnPresence = func(user model.User, online bool, when int64) {
		if online {
			fmt.Printf("* %s joined at %s\n", user.UserName, stamp(when))
		} else {
			fmt.Printf("* %s left at %s\n", user.UserName, stamp(when))
		}
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- engine.Run(ctx)
	}()

	go readInput(ctx, engine, cancel)

	if err := <-runErr; err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("bye")
}

// readInput reads lines from stdin and sends each as a chat message.
// "/quit" ends the session.
func readInput(ctx context.Context, engine *client.Engine, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			cancel()
			return
		}
		if err := engine.SendText(ctx, line); err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintln(os.Stderr, "send failed:", err)
		}
	}
	// stdin closed (EOF or error): end the session.
	cancel()
}

// stamp renders a UnixNano timestamp as local wall-clock time.
func stamp(unixNano int64) string {
	return time.Unix(0, unixNano).Format("15:04:05")
}
