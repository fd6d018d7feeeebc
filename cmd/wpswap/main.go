package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/hpungsan/wpswap/internal/config"
	"github.com/hpungsan/wpswap/internal/db"
	"github.com/hpungsan/wpswap/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// envHome overrides the state directory (default ~/.wpswap).
const envHome = "WPSWAP_HOME"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"diagnose": true, "plan": true, "run": true, "rewrite": true,
	"runs": true, "show": true, "report": true, "config": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
// Global flags may precede the subcommand.
func isCLIMode(args []string) bool {
	for _, arg := range args[1:] {
		if cliCommands[arg] {
			return true
		}
		if isHelpOrVersionArg(arg) {
			return true
		}
		if !strings.HasPrefix(arg, "-") {
			return false
		}
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	return len(args) >= 2 && (isHelpOrVersionArg(args[1]) || args[1] == "help")
}

func isHelpOrVersionArg(arg string) bool {
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  wpswap

  Replace WordPress media with local WebP files

  Usage: wpswap <command> [options]
         wpswap --help

  MCP server mode requires piped input.`)
}

// stateDir returns the directory holding the ledger, lock and reports.
func stateDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(envHome)); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".wpswap"), nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil, config.DefaultConfig(), "")
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	baseDir, err := stateDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "warning: unknown disabled_tools ignored: %s\n", strings.Join(unknown, ", "))
	}

	// CLI mode: known subcommand
	if isCLIMode(os.Args) {
		app := newCLIApp(database, cfg, baseDir)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(exitCode(err))
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'wpswap --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(database, cfg, db.ReportsDir(baseDir), Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
