// Command iota-mcp runs the IOTA EVM gateway, an MCP server that exposes
// chain observation tools and resources for the IOTA EVM networks and a
// set of comparison chains.
//
// Usage:
//
//	iota-mcp [flags] [stdio]
//
// With no mode argument the gateway serves MCP over HTTP on HOST:PORT,
// with /healthz and /metrics alongside the /mcp endpoint. The stdio mode
// speaks MCP on stdin and stdout for locally spawned sessions; logs go to
// stderr in both modes.
//
// Configuration comes from the environment (HOST, PORT, DEFAULT_CHAIN_ID,
// per-network <SIBLING>_NODE_URL / _JWT_TOKEN / _MNEMONIC, DEBUG). A .env
// file is loaded first when present; -env points it elsewhere.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/iotaevm/gateway/config"
	"github.com/iotaevm/gateway/log"
	"github.com/iotaevm/gateway/node"
)

// Build-time commit hash, overridable with ldflags:
//
//	go build -ldflags "-X main.commit=abc1234"
var commit = "unknown"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. It accepts CLI
// arguments without the program name so it can be tested in isolation.
func run(args []string) int {
	opts, exit, code := parseArgs(args)
	if exit {
		return code
	}

	// A missing env file is fine; configuration may come entirely from
	// the process environment.
	if err := godotenv.Load(opts.envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", opts.envFile, err)
		return 1
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	if opts.stdio {
		log.SetDefault(log.New(level))
	} else {
		log.SetDefault(log.NewConsole(level, isatty.IsTerminal(os.Stderr.Fd())))
	}

	n, err := node.New(cfg)
	if err != nil {
		log.Error("gateway construction failed", "err", err)
		return 1
	}

	if opts.stdio {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		if err := n.ServeStdio(ctx); err != nil {
			log.Error("stdio session failed", "err", err)
			return 1
		}
		return 0
	}

	if err := n.Start(); err != nil {
		log.Error("gateway start failed", "err", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	if err := n.Stop(); err != nil {
		log.Error("shutdown failed", "err", err)
		return 1
	}
	return 0
}

// options is the full command line surface. Gateway behavior is
// configured through the environment, never through flags.
type options struct {
	envFile string
	stdio   bool
}

// parseArgs parses CLI arguments. It returns the options, whether the
// caller should exit immediately, and the exit code for that case.
func parseArgs(args []string) (options, bool, int) {
	var opts options
	fs := flag.NewFlagSet("iota-mcp", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&opts.envFile, "env", ".env", "env file loaded before reading configuration")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return opts, true, 2
	}
	if *showVersion {
		fmt.Printf("%s %s (commit %s)\n", node.Name, node.Version, commit)
		return opts, true, 0
	}

	switch fs.Arg(0) {
	case "":
	case "stdio":
		opts.stdio = true
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q, expected \"stdio\" or no mode\n", fs.Arg(0))
		return opts, true, 2
	}
	return opts, false, 0
}
