package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
                 _       _                 _
   ___ __ _ ___| |_ ___| |__  _   _ _ __ | | __
  / __/ _' / __| __/ __| '_ \| | | | '_ \| |/ /
 | (_| (_| \__ \ || (__| | | | |_| | | | |   <
  \___\__,_|___/\__\___|_| |_|\__,_|_| |_|_|\_\

  Episode transcripts, chunked for retrieval

  Usage: castchunk <command> [options]
         castchunk --help`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newCLIApp(newAppEnv(os.Stdout, os.Stderr))
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
