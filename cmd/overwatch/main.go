package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pavemetrics/overwatch/internal/alerts"
	"github.com/pavemetrics/overwatch/internal/analytics"
	"github.com/pavemetrics/overwatch/internal/api"
	"github.com/pavemetrics/overwatch/internal/config"
	"github.com/pavemetrics/overwatch/internal/fleet"
	"github.com/pavemetrics/overwatch/internal/outbox"
	"github.com/pavemetrics/overwatch/internal/sensors"
	"github.com/pavemetrics/overwatch/internal/weather"
)

func main() {
	// Load configuration
	var cfg *config.Config
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		cfg = config.LoadFromEnv()
	}

	log.Printf("Starting Overwatch - Pavement Operations Sync & Aggregation Layer")
	log.Printf("Environment: %s", cfg.Server.Environment)

	// Durable outbox
	outboxStore, err := outbox.OpenStore(cfg.Outbox.Path)
	if err != nil {
		log.Fatalf("Failed to open outbox store: %v", err)
	}
	defer outboxStore.Close()
	queue := outbox.NewQueue(outboxStore, outbox.NewHTTPDeliverer(cfg.Upstreams.WriteBaseURL, cfg.Outbox.DeliveryTimeout))
	log.Println("Outbox store opened")

	// Alert history
	alertStore, err := alerts.OpenStore(cfg.Outbox.Path)
	if err != nil {
		log.Fatalf("Failed to open alert store: %v", err)
	}
	defer alertStore.Close()

	// Upstream clients
	fleetChannel := fleet.NewChannel(fleet.Config{
		PushURL:       cfg.Upstreams.FleetWSURL,
		PullURL:       cfg.Upstreams.FleetURL,
		PullTimeout:   cfg.Upstreams.FleetTimeout,
		ReconnectBase: cfg.Fleet.ReconnectBase,
		ReconnectMax:  cfg.Fleet.ReconnectMax,
		Site:          cfg.Site,
	})
	sensorClient := sensors.NewClient(cfg.Upstreams.SensorURL, cfg.Upstreams.SensorTimeout, cfg.Site)
	weatherClient := weather.NewClient(cfg.Upstreams.WeatherURL, cfg.Upstreams.WeatherTimeout)

	// Aggregation service
	analyticsService := analytics.NewService(cfg.Analytics, cfg.Site, fleetChannel, sensorClient, weatherClient, alertStore)
	log.Println("Analytics service wired")

	// Websocket hub, fed by the live fleet channel
	hub := api.NewHub()
	go hub.Run()
	fleetSub := fleetChannel.Subscribe(hub.BroadcastFleet)
	log.Println("Fleet channel subscribed")

	// Deliver any operations queued before the last shutdown.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		result, err := queue.Drain(ctx)
		if err != nil {
			log.Printf("Startup outbox drain failed: %v", err)
			return
		}
		if result.Delivered > 0 || result.Remaining > 0 {
			log.Printf("Startup outbox drain: %d delivered, %d remaining", result.Delivered, result.Remaining)
		}
	}()

	// Create API server
	server := api.NewServer(cfg, queue, fleetChannel, sensorClient, weatherClient, analyticsService, alertStore, hub)

	// Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	fleetSub.Cancel()
	hub.Stop()

	log.Println("Overwatch stopped")
}
