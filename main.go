package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"MLvsTheWorld/capture"
	"MLvsTheWorld/config"
	"MLvsTheWorld/display"
	"MLvsTheWorld/engine"
	"MLvsTheWorld/logger"
	"MLvsTheWorld/mode"
	"MLvsTheWorld/monitor"
	"MLvsTheWorld/pipeline"
	"MLvsTheWorld/preprocess"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	path := flag.String("config", config.DefaultPath, "path to the yaml configuration")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LogMode); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Log()

	fmt.Println(strings.Repeat("#", 64))
	fmt.Printf("CPU Cores: %d\n", runtime.NumCPU())
	fmt.Printf(" HTTP    Port: %d\n", cfg.HTTPPort)
	fmt.Printf(" Metrics Port: %d\n", cfg.MetricsPort)
	fmt.Println(strings.Repeat("#", 64))
	cfg.Log(cfg.Normalize())

	backend, err := engine.Load(cfg.Engine)
	if err != nil {
		return err
	}
	defer backend.Close()

	pre, err := preprocess.New(cfg.Model)
	if err != nil {
		return err
	}
	src, err := capture.New(cfg.Capture)
	if err != nil {
		return err
	}

	initial := cfg.ActiveModel()
	hub := display.NewHub(initial, 0)
	modes := mode.New(initial, hub, cfg.Model.Width, cfg.Model.Height)
	pipe := pipeline.New(cfg.Pipeline, pre, backend, modes, hub)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	start := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Error(name+" stopped", zap.Error(err))
				cancel()
			}
		}()
	}
	start("display", func() error { hub.Run(ctx); return nil })
	start("pipeline", func() error { pipe.Run(ctx); return nil })
	start("http", func() error { return hub.Serve(ctx, cfg.HTTPPort, modes) })
	start("capture", func() error { return src.Run(ctx, pipe.Submit) })
	if cfg.MetricsPort > 0 {
		start("metrics", func() error { monitor.StartMon(ctx, cfg.MetricsPort); return nil })
	}
	log.Info("running", zap.String("model", initial.String()), zap.String("backend", backend.Name()))

	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()
	stats := pipe.Stats()
	log.Info("safely exited",
		zap.Uint64("framesPublished", stats.Published),
		zap.Uint64("framesConsumed", stats.Consumed),
		zap.Uint64("framesDropped", stats.Dropped))
	return nil
}
