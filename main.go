// Command connectn runs the N-in-a-row session coordinator.
//
// The default "serve" command exposes the REST API, the game WebSocket
// endpoint and an /mcp HTTP endpoint. "mcp" runs an MCP stdio server and
// starts an internal HTTP server when none is reachable. The remaining
// commands inspect variants and recorded results or mint development tokens.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/connectn/auth"
	"github.com/wricardo/connectn/storage"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "connectn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newCommand().Run(ctx, os.Args)
}

func newCommand() *cli.Command {
	serve := &cli.Command{
		Name:   "serve",
		Usage:  "run the HTTP server with REST API, WebSocket and MCP endpoint",
		Action: serveAction,
	}

	return &cli.Command{
		Name:    AppName,
		Usage:   "real-time N-in-a-row game server",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "HTTP server host (HOST)"},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port (PORT)"},
			&cli.StringFlag{Name: "config-dir", Usage: "directory containing variant files (CONFIG_DIR)"},
			&cli.StringFlag{Name: "default-variant", Usage: "variant used when a session names none (DEFAULT_VARIANT)"},
			&cli.StringFlag{Name: "store", Usage: "result store: memory, file, badger or postgres (STORE)"},
			&cli.StringFlag{Name: "log-level", Usage: "DEBUG, INFO, WARN or ERROR (LOG_LEVEL)"},
			&cli.BoolFlag{Name: "ngrok", Usage: "expose the server through an ngrok tunnel (NGROK_ENABLED)"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain (NGROK_DOMAIN)"},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			serve,
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "run an MCP stdio server backed by the HTTP API",
				Action:  mcpAction,
			},
			{
				Name:      "token",
				Usage:     "mint a session token for a participant",
				ArgsUsage: "<participant id>",
				Action:    tokenAction,
			},
			{
				Name:   "variants",
				Usage:  "list the game variants found in the config directory",
				Action: variantsAction,
			},
			{
				Name:   "validate",
				Usage:  "check every variant file in the config directory",
				Action: validateAction,
			},
			{
				Name:  "results",
				Usage: "print recorded results; stop the server first when using the badger store",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "count", Value: 10, Usage: "maximum number of results"},
					&cli.StringFlag{Name: "sort", Value: storage.SortNewest, Usage: "newest or oldest"},
					&cli.StringSliceFlag{Name: "player", Usage: "only results whose roster includes this player"},
					&cli.StringSliceFlag{Name: "id", Usage: "fetch results by id instead of searching"},
				},
				Action: resultsAction,
			},
		},
	}
}

// loadConfig reads the environment and applies command line overrides
func loadConfig(cmd *cli.Command) (Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return Config{}, err
	}

	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}
	if cmd.IsSet("config-dir") {
		cfg.ConfigDir = cmd.String("config-dir")
	}
	if cmd.IsSet("default-variant") {
		cfg.DefaultVariant = cmd.String("default-variant")
	}
	if cmd.IsSet("store") {
		cfg.StoreKind = cmd.String("store")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("ngrok") {
		cfg.NgrokEnabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.NgrokDomain = cmd.String("ngrok-domain")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)
	return runServer(ctx, cfg, log)
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the MCP stream
	return runStdioMCP(ctx, cfg, stderrLogger(cfg.LogLevel))
}

func tokenAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one participant id, got %d arguments", cmd.Args().Len())
	}
	if cfg.TokenSecret == "" {
		return errors.New("TOKEN_SECRET must be set to mint tokens the server accepts")
	}

	issuer, err := auth.NewIssuer(cfg.TokenSecret, cfg.TokenLifetime)
	if err != nil {
		return err
	}
	token, err := issuer.CreateSessionToken(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.Root().Writer, token)
	return nil
}

func variantsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	variants, err := newVariantCatalog(cfg)
	if err != nil {
		return err
	}
	writeVariants(cmd.Root().Writer, variants.ListVariants(), variants.GetDefault().Name)
	return nil
}

func validateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	invalid, err := validateVariantFiles(cmd.Root().Writer, cfg.ConfigDir)
	if err != nil {
		return err
	}
	if invalid > 0 {
		return fmt.Errorf("%d variant files are invalid", invalid)
	}
	return nil
}

func resultsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := stderrLogger(cfg.LogLevel)

	store, err := storage.Open(cfg.StoreKind, cfg.StoreLocation(), log)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreKind, err)
	}
	defer store.Close()

	if ids := cmd.StringSlice("id"); len(ids) > 0 {
		results, err := store.GetResults(ctx, ids)
		if err != nil {
			return err
		}
		writeResults(cmd.Root().Writer, results)
		return nil
	}

	results, err := store.SearchResults(ctx, storage.SearchParams{
		Count:   cmd.Int("count"),
		Sort:    cmd.String("sort"),
		Players: cmd.StringSlice("player"),
	})
	if err != nil {
		return err
	}
	writeResults(cmd.Root().Writer, results)
	return nil
}

// stderrLogger is used where stdout is reserved for command output
func stderrLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
