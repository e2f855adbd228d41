package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hpungsan/keepsake/internal/config"
	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/logger"
	"github.com/hpungsan/keepsake/internal/mcp"
	"github.com/hpungsan/keepsake/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "mcp": true,
	"create": true, "list": true, "fetch": true, "open": true,
	"withdraw": true, "update": true, "hint": true,
	"share": true, "connect": true, "disconnect": true,
	"sweep": true, "purge": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _  __                         _
  | |/ /___  ___ _ __  ___  __ _| | _____
  | ' // _ \/ _ \ '_ \/ __|/ _' | |/ / _ \
  | . \  __/  __/ |_) \__ \ (_| |   <  __/
  |_|\_\___|\___| .__/|___/\__,_|_|\_\___|
                |_|

  Time capsules that open when they are ready

  Usage: keepsake <command> [options]
         keepsake serve
         keepsake --help

  MCP server mode requires piped input.`)
}

// warnUnknownDisabled logs disabled tool or type names that match nothing.
func warnUnknownDisabled(log zerolog.Logger, cfg *config.Config) {
	for _, name := range mcp.ValidateDisabledTools(cfg.DisabledTools) {
		log.Warn().Str("tool", name).Msg("unknown tool in disabled_tools")
	}
	for _, name := range mcp.ValidateDisabledTypes(cfg.DisabledTypes) {
		log.Warn().Str("type", name).Msg("unknown type in disabled_types")
	}
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before store init (no store needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, zerolog.Nop())
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, ".keepsake")

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("keepsake", cfg.LogLevel)
	warnUnknownDisabled(log, cfg)

	store, err := db.Open(context.Background(), baseDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	svc := ops.New(store, cfg, ops.WithLogger(log))

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(svc, store, log)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			store.Close()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'keepsake --help' for usage.\n")
		store.Close()
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(svc, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		store.Close()
		os.Exit(1)
	}
}
