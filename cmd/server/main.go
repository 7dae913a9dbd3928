package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxwork/voxwork/internal/infrastructure/config"
	"github.com/voxwork/voxwork/internal/server"
)

func main() {
	port := flag.String("port", "", "HTTP port (overrides PORT)")
	storeURL := flag.String("store", "", "backend store base URL (overrides STORE_URL)")
	gatewayURL := flag.String("gateway", "", "realtime gateway URL (overrides TRANSPORT_URL)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *storeURL != "" {
		cfg.Store.BaseURL = *storeURL
	}
	if *gatewayURL != "" {
		cfg.Transport.GatewayURL = *gatewayURL
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("server error: %v", err)
	}
}
