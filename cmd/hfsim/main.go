package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"hackflight-sim/internal/config"
	"hackflight-sim/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config (defaults apply when empty)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
	}

	logs := web.NewLogBuffer(cfg.HTTP.LogLines)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, prometheus.NewRegistry(), logs)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	log.Printf("hfsim starting")
	log.Printf("serial listening on %s tick=%s firmware=%s", rt.srv.Addr(), cfg.Sim.Tick, cfg.Sim.Firmware.Kind)
	if err := rt.run(ctx); err != nil {
		log.Fatalf("hfsim failed: %v", err)
	}
	log.Printf("hfsim stopped")
}
