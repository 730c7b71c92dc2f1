// ABOUTME: Entry point for the ws-manager connection ledger CLI
// ABOUTME: Tracks logical connections, records messages and sweeps stale heartbeats

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/blackroad/ws-manager/internal/config"
	"github.com/blackroad/ws-manager/internal/messaging"
	"github.com/blackroad/ws-manager/internal/registry"
	"github.com/blackroad/ws-manager/internal/report"
	"github.com/blackroad/ws-manager/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the ws-manager config file.
// Priority: WS_MANAGER_CONFIG env var > XDG_CONFIG_HOME/ws-manager/config.yaml > ~/.config/ws-manager/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WS_MANAGER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "ws-manager", "config.yaml")
}

// loadConfig reads the config file when present; a missing file means
// defaults, not an error.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func printUsage() {
	fmt.Println("Usage: ws-manager [--db PATH] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  connect <agent> [--ws-id ID] [--metadata JSON]   Register a connection")
	fmt.Println("  disconnect <ws_id>                               Remove a connection")
	fmt.Println("  list                                             List active connections")
	fmt.Println("  broadcast <message> [--agent NAME] [--type T]    Broadcast a message")
	fmt.Println("  send <ws_id> <message> [--type T]                Send a direct message")
	fmt.Println("  heartbeat <ws_id> [--latency MS]                 Update a heartbeat")
	fmt.Println("  heartbeat-check [--timeout SECONDS]              Remove stale connections")
	fmt.Println("  history [--ws-id ID] [--limit N]                 Show message history")
	fmt.Println("  stats                                            Show ledger statistics")
	fmt.Println("  version                                          Show version")
}

func main() {
	args := os.Args[1:]

	// Global --db override before the subcommand
	var dbOverride string
	if len(args) >= 2 && args[0] == "--db" {
		dbOverride = args[1]
		args = args[2:]
	}

	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	command, rest := args[0], args[1:]

	if command == "version" {
		fmt.Println(version)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if dbOverride != "" {
		cfg.Database.Path = dbOverride
	}

	slog.SetDefault(setupLogger(cfg.Logging))

	app, err := openApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	switch command {
	case "connect":
		err = runConnect(ctx, app, rest)
	case "disconnect":
		err = runDisconnect(ctx, app, rest)
	case "list":
		err = runList(app)
	case "broadcast":
		err = runBroadcast(ctx, app, rest)
	case "send":
		err = runSend(ctx, app, rest)
	case "heartbeat":
		err = runHeartbeat(ctx, app, rest)
	case "heartbeat-check":
		err = runHeartbeatCheck(ctx, app, cfg, rest)
	case "history":
		err = runHistory(ctx, app, rest)
	case "stats":
		err = runStats(ctx, app)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app wires the ledger components over one store.
type app struct {
	store     *store.SQLiteStore
	registry  *registry.Registry
	messaging *messaging.Service
	report    *report.Service
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	reg, err := registry.New(ctx, st, slog.Default())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading registry: %w", err)
	}

	return &app{
		store:     st,
		registry:  reg,
		messaging: messaging.New(reg, st, slog.Default()),
		report:    report.New(reg, st, slog.Default()),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

func runConnect(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	wsID := fs.String("ws-id", "", "connection id (auto-generated if omitted)")
	metadataJSON := fs.String("metadata", "{}", "JSON metadata")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: connect <agent> [--ws-id ID] [--metadata JSON]")
	}
	agent := fs.Arg(0)

	// Malformed metadata is rejected before anything is persisted
	var metadata map[string]any
	if err := json.Unmarshal([]byte(*metadataJSON), &metadata); err != nil {
		return fmt.Errorf("parsing metadata: %w", err)
	}

	conn, err := app.registry.Add(ctx, store.NewConnection(*wsID, agent, metadata))
	if err != nil {
		return err
	}

	color.Green("Connected: %s (agent=%s)", conn.WSID, conn.Agent)
	return nil
}

func runDisconnect(ctx context.Context, app *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: disconnect <ws_id>")
	}
	wsID := args[0]

	ok, err := app.registry.Remove(ctx, wsID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("connection not found: %s", wsID)
	}

	color.Yellow("Disconnected: %s", wsID)
	return nil
}

func runList(app *app) error {
	conns := app.registry.GetAll()
	if len(conns) == 0 {
		fmt.Println("No active connections.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WS_ID\tAGENT\tMSGS\tLAST_HEARTBEAT")
	for _, c := range conns {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.WSID, c.Agent, c.MessageCount, c.LastHeartbeat)
	}
	return w.Flush()
}

func runBroadcast(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("broadcast", flag.ExitOnError)
	agent := fs.String("agent", "", "only target connections with this agent name")
	msgType := fs.String("type", store.MessageTypeBroadcast, "message type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: broadcast <message> [--agent NAME] [--type TYPE]")
	}

	var filter messaging.Filter
	if *agent != "" {
		filter = messaging.AgentIs(*agent)
	}

	delivered, err := app.messaging.Broadcast(ctx, fs.Arg(0), filter, *msgType, "")
	if err != nil {
		return err
	}

	color.Green("Broadcast to %d connection(s)", len(delivered))
	return nil
}

func runSend(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	msgType := fs.String("type", store.MessageTypeData, "message type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: send <ws_id> <message> [--type TYPE]")
	}
	wsID := fs.Arg(0)

	msg, ok, err := app.messaging.Send(ctx, wsID, fs.Arg(1), *msgType, "")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("connection not found: %s", wsID)
	}

	color.Green("Sent message %s to %s", msg.MsgID, wsID)
	return nil
}

func runHeartbeat(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("heartbeat", flag.ExitOnError)
	latency := fs.Int64("latency", -1, "observed latency in milliseconds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: heartbeat <ws_id> [--latency MS]")
	}
	wsID := fs.Arg(0)

	var latencyMS *int64
	if *latency >= 0 {
		latencyMS = latency
	}

	ok, err := app.registry.UpdateHeartbeat(ctx, wsID, latencyMS)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("connection not found: %s", wsID)
	}

	color.Green("Heartbeat updated for %s", wsID)
	return nil
}

func runHeartbeatCheck(ctx context.Context, app *app, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("heartbeat-check", flag.ExitOnError)
	timeoutSecs := fs.Int("timeout", int(cfg.Heartbeat.Timeout/time.Second), "staleness cutoff in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := app.messaging.HeartbeatCheck(ctx, time.Duration(*timeoutSecs)*time.Second)
	if err != nil {
		return err
	}

	fmt.Printf("Active: %d  Timed out: %d\n", len(result.Active), len(result.TimedOut))
	for _, wsID := range result.TimedOut {
		color.Yellow("  Removed: %s", wsID)
	}
	return nil
}

func runHistory(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	wsID := fs.String("ws-id", "", "limit to one connection (sender or recipient)")
	limit := fs.Int("limit", 20, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	msgs, err := app.report.MessageHistory(ctx, *wsID, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s]\t%s\t%s\n", m.SentAt, m.Type, truncate(m.Content, 60))
	}
	return w.Flush()
}

func runStats(ctx context.Context, app *app) error {
	stats, err := app.report.ConnectionStats(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = newColorHandler(os.Stderr, level)
	}

	return slog.New(handler)
}
