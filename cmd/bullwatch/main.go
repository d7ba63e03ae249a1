package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"bullwatch/internal/cli"
	"bullwatch/internal/config"
	"bullwatch/internal/logger"

	"github.com/google/subcommands"
)

// VersionFile holds the release tag written by the build.
const VersionFile = "version.latest"

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return int(subcommands.ExitFailure)
	}
	closeLog := logger.Setup(cfg.Log.Level, cfg.Log.File, int64(cfg.Log.MaxSizeMB), cfg.Log.MaxBackups)
	defer closeLog()
	logger.Debugf("bullwatch %s, backend %s", readVersion(), cfg.API.BaseURL)

	// 2. Cancel on SIGINT/SIGTERM so watch and serve stop cleanly
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Infof("shutting down: signal received")
		cancel()
	}()

	// 3. Wire the client core
	app, err := cli.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting: %v\n", err)
		return int(subcommands.ExitFailure)
	}
	defer app.Close()

	// 4. Dispatch
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	cli.Register(commander, app)
	flag.Parse()
	return int(commander.Execute(ctx))
}

func readVersion() string {
	version, err := os.ReadFile(VersionFile)
	if err != nil {
		return "v0.0.0-dev"
	}
	return string(version)
}
