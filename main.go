// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	logging "github.com/ipfs/go-log/v2"

	"github.com/signalmesh/signalmesh/internal/app"
	"github.com/signalmesh/signalmesh/internal/config"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
	logLevel = flag.String("log-level", "info", "Log level (debug|info|warn|error)")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("signalmesh v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	if err := logging.SetLogLevel("*", *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage()
		return
	}

	switch command := args[0]; command {
	case "node":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: node command requires directory path")
			fmt.Fprintln(os.Stderr, "Usage: signalmesh node <node-directory>")
			os.Exit(1)
		}
		runNode(args[1], false)

	case "hub":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: hub command requires directory path")
			fmt.Fprintln(os.Stderr, "Usage: signalmesh hub <node-directory>")
			os.Exit(1)
		}
		runNode(args[1], true)

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}
}

func runNode(dirArg string, hubOnly bool) {
	absDir, err := filepath.Abs(dirArg)
	if err != nil {
		fatalf("Invalid node directory: %v", err)
	}
	if stat, err := os.Stat(absDir); err != nil || !stat.IsDir() {
		fatalf("Node directory does not exist: %s", absDir)
	}

	cfgPath := filepath.Join(absDir, "signalmesh.json")
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if created {
		fmt.Printf("Created default config: %s\n", cfgPath)
	}

	// Signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := app.Run(ctx, app.Options{
		Dir:     absDir,
		CfgPath: cfgPath,
		Cfg:     cfg,
		HubOnly: hubOnly,
	}); err != nil {
		fatalf("Node failed: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func showUsage() {
	fmt.Println("signalmesh - peer rendezvous signaling")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  signalmesh node <directory>   Run a signaling node")
	fmt.Println("  signalmesh hub <directory>    Run only the rendezvous hub")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  node <directory>")
	fmt.Println("        Run a node from the specified directory")
	fmt.Println("        A signalmesh.json config is created there on first run")
	fmt.Println()
	fmt.Println("  hub <directory>")
	fmt.Println("        Run the websocket rendezvous hub without a client")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h               Show this help message")
	fmt.Println("  -version         Show version")
	fmt.Println("  -log-level LVL   Log verbosity (default info)")
}
