package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ConserveLee/snapbuy/app/purchase"
	"github.com/ConserveLee/snapbuy/internal/config"
	"github.com/ConserveLee/snapbuy/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	target := flag.String("time", "", "Purchase time, e.g. \"2025-04-19 22:28:33\" (overrides config)")
	debug := flag.Bool("debug", false, "Enable detailed debug logging")
	headless := flag.Bool("headless", false, "Run the browser without a window")
	timeSync := flag.Bool("time-sync", false, "Correct the local clock against HTTP Date headers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *target != "" {
		cfg.TargetTime = *target
	}
	if *debug {
		cfg.DebugMode = true
	}
	if *headless {
		cfg.Browser.Headless = true
	}
	if *timeSync {
		cfg.Scheduler.TimeSync = true
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config %s:\n%v", *configPath, err)
	}

	appLogger := logger.NewAppLogger(nil, cfg.DebugMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := purchase.Launch(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Startup failed: %v", err)
		os.Exit(1)
	}

	state, err := bot.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Purchase %s: %v\n", state, err)
		os.Exit(1)
	}
	fmt.Println("Purchase submitted.")
}
