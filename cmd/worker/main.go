package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shmstate-org/shmstate/pkg/app"
	"github.com/shmstate-org/shmstate/pkg/config"
	"github.com/shmstate-org/shmstate/pkg/metrics"
	"github.com/shmstate-org/shmstate/util"
)

const (
	shutdownPoll     = 1 * time.Second
	keyCheckInterval = 30 * time.Second
)

func main() {
	// Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	fmt.Printf("🚀 Starting worker (pid %d), pool of %d\n", os.Getpid(), cfg.AppWorkers)
	fmt.Printf("📊 Exporter: %v | 🔐 Persist keys: %v\n", cfg.EnableExporter, cfg.PersistKeys)

	// Initialization
	a, err := app.Open(cfg, true)
	if err != nil {
		log.Fatalf("❌ Failed to open shared state: %v", err)
	}
	defer a.Close()

	if cfg.EnableExporter {
		metrics.StartMetricsServer(cfg.ExporterPort)
	}
	a.InstallLogTee()

	// First worker in stamps the boot time; losing that race is harmless.
	if bt, err := a.BootTime(); err == nil && bt.IsZero() {
		if err := a.MarkBoot(time.Now()); err != nil {
			util.Warn("marking boot time: %v", err)
		}
	}

	if err := a.Startup(); err != nil {
		log.Fatalf("❌ Startup barrier failed: %v", err)
	}

	if _, err := a.Keys.Refresh(false); err != nil {
		util.Error("initial key refresh: %v", err)
	}
	if _, err := a.Settings.Load(); err != nil {
		util.Warn("initial settings load: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	keyTicker := time.NewTicker(keyCheckInterval)
	defer keyTicker.Stop()
	pollTicker := time.NewTicker(shutdownPoll)
	defer pollTicker.Stop()

	for {
		select {
		case sig := <-sigCh:
			util.Info("received %s, requesting pool shutdown", sig)
			if err := a.RequestShutdown(); err != nil {
				util.Error("raising shutdown flag: %v", err)
			}
			return

		case <-keyTicker.C:
			if _, err := a.Keys.Refresh(false); err != nil {
				util.Error("key refresh: %v", err)
			}

		case <-pollTicker.C:
			if down, err := a.ShutdownRequested(); err == nil && down {
				util.Info("shutdown flag set, exiting")
				return
			}
			if _, err := a.Settings.Load(); err != nil {
				util.Debug("settings reload: %v", err)
			}
		}
	}
}
