package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spaghettifunk/mapstudio/engine"
	"github.com/spaghettifunk/mapstudio/engine/config"
	"github.com/spaghettifunk/mapstudio/engine/core"
)

func main() {
	configPath := flag.String("config", "", "path to the studio TOML configuration")
	gameRoot := flag.String("game-root", "", "overrides studio.game_root")
	headless := flag.Bool("headless", false, "run without a window or GPU")
	maps := flag.String("maps", "", "comma separated map ids to load on startup")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			core.LogFatal(err.Error())
		}
		cfg = loaded
	}
	if *gameRoot != "" {
		cfg.Studio.GameRoot = *gameRoot
	}
	if *headless {
		cfg.Studio.Headless = true
	}
	if *maps != "" {
		cfg.Studio.Maps = strings.Split(*maps, ",")
	}

	studio, err := engine.New(cfg)
	if err != nil {
		core.LogFatal(err.Error())
	}
	if err := studio.Initialize(); err != nil {
		studio.Shutdown()
		core.LogFatal(err.Error())
	}

	// signal channel to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if err := studio.Run(ctx); err != nil {
		core.LogError(err.Error())
	}
	if cfg.Studio.DebugDump {
		studio.DumpState(os.Stderr)
	}
	if err := studio.Shutdown(); err != nil {
		core.LogError(err.Error())
		os.Exit(1)
	}
}
