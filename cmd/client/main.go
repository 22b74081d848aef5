package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/hersh/gotris-engine/internal/netclient"
	"github.com/hersh/gotris-engine/internal/protocol"
)

// Short forms accepted on stdin next to the full command names.
var aliases = map[string]string{
	"s": "start",
	"p": "pause",
	"r": "reset",
	"d": "drop",
	"j": "move_down",
	"h": "move_left",
	"l": "move_right",
	"z": "rotate_left",
	"x": "rotate_right",
	"w": "set_width",
	"t": "set_height",
}

func main() {
	serverAddr := flag.String("server", "http://localhost:8080", "Server base URL")
	sessionID := flag.String("session", "", "Attach to an existing session instead of creating one")
	keep := flag.Bool("keep", false, "Leave the session running on exit")
	debug := flag.Bool("debug", false, "Log full snapshots")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	if !*debug {
		logger = logger.WithOptions(zap.IncreaseLevel(zap.InfoLevel))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := netclient.NewAPI(*serverAddr)
	id := *sessionID
	if id == "" {
		created, err := api.CreateSession(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create session at %s: %v\n", *serverAddr, err)
			fmt.Fprintf(os.Stderr, "Make sure the server is running (go run ./cmd/server)\n")
			os.Exit(1)
		}
		id = created.SessionID
		logger.Info("session created", zap.String("session", id))
	}

	url, err := api.StreamURL(id)
	if err != nil {
		logger.Fatal("bad server address", zap.Error(err))
	}
	client, err := netclient.Dial(ctx, url, logger.Named("ws"))
	if err != nil {
		logger.Fatal("failed to connect", zap.String("url", url), zap.Error(err))
	}
	defer client.Close()

	go watch(client, logger)
	go readCommands(client, logger, stop)

	select {
	case <-ctx.Done():
	case <-client.Done():
		if err := client.Err(); err != nil {
			logger.Warn("connection lost", zap.Error(err))
		} else {
			logger.Info("session closed by server")
		}
	}

	if *sessionID == "" && !*keep {
		if err := api.Terminate(context.Background(), id); err != nil {
			logger.Debug("terminate on exit", zap.Error(err))
		}
	}
}

func watch(c *netclient.Client, logger *zap.Logger) {
	for {
		select {
		case snap, ok := <-c.Snapshots():
			if !ok {
				return
			}
			logSnapshot(logger, snap)
		case e, ok := <-c.Errors():
			if !ok {
				return
			}
			logger.Warn("command rejected", zap.String("command", e.Command), zap.String("reason", e.Message))
		}
	}
}

func logSnapshot(logger *zap.Logger, s protocol.SnapshotPayload) {
	fields := []zap.Field{
		zap.String("state", s.State),
		zap.Strings("allowed", s.AllowedActions),
		zap.Int("score", s.Score),
		zap.Int("lines", s.Lines),
		zap.Int("level", s.Level),
		zap.Int("pieces", s.Pieces),
		zap.Int("filled", len(s.Field)),
		zap.String("size", fmt.Sprintf("%dx%d", s.Width, s.Height)),
	}
	if s.Figure != nil {
		fields = append(fields, zap.String("figure", s.Figure.Type), zap.Any("at", s.Figure.Coordinates))
	}
	logger.Info("snapshot", fields...)
	logger.Debug("field", zap.Any("cells", s.Field))
}

// readCommands sends one command per stdin line: a name or alias,
// optionally followed by a value.
func readCommands(c *netclient.Client, logger *zap.Logger, quit func()) {
	defer quit()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		name := parts[0]
		if name == "quit" || name == "q" {
			return
		}
		if full, ok := aliases[name]; ok {
			name = full
		}

		value := 0
		if len(parts) > 1 {
			v, err := strconv.Atoi(parts[1])
			if err != nil {
				logger.Warn("value must be an integer", zap.String("value", parts[1]))
				continue
			}
			value = v
		}

		if err := c.Send(name, value); err != nil {
			logger.Warn("send failed", zap.Error(err))
			return
		}
	}
}
