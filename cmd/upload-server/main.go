// Command upload-server accepts file uploads over the line-delimited JSON
// upload protocol.
//
// Usage:
//
//	upload-server [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-p int                Port to listen on (default 5000)
//	-d string             Storage directory (default "files")
//	-workers int          Acceptor goroutines (default 2)
//	-idle-timeout dur     Close silent connections after this long (0 disables)
//	-dh-group string      Key exchange group: generate or modp2
//	-manifest string      Upload manifest path
//	-protocol-log string  Write protocol events to this file
//	-advertise            Advertise the service via mDNS
//	-v                    Verbose (debug) logging
//
// Examples:
//
//	# Listen on 5000 and store into ./files
//	upload-server
//
//	# Fixed group, manifest and protocol log
//	upload-server -p 6000 -dh-group modp2 -manifest /var/lib/upload/manifest.json -protocol-log server.plog
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TomasCostaK/secure-comms/pkg/service"
)

func main() {
	configFile := flag.String("config", "", "YAML configuration file")
	port := flag.Int("p", 0, "Port to listen on (default 5000)")
	storageDir := flag.String("d", "", "Storage directory (default \"files\")")
	workers := flag.Int("workers", 0, "Acceptor goroutines (default 2)")
	idleTimeout := flag.Duration("idle-timeout", -1, "Close silent connections after this long (0 disables)")
	dhGroup := flag.String("dh-group", "", "Key exchange group: generate or modp2")
	manifest := flag.String("manifest", "", "Upload manifest path")
	protocolLog := flag.String("protocol-log", "", "Write protocol events to this file")
	advertise := flag.Bool("advertise", false, "Advertise the service via mDNS")
	verbose := flag.Bool("v", false, "Verbose (debug) logging")
	flag.Parse()

	config := service.DefaultConfig()
	if *configFile != "" {
		loaded, err := service.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		config = loaded
	}

	// Flags override the file.
	if *port != 0 {
		config.Port = *port
	}
	if *storageDir != "" {
		config.StorageDir = *storageDir
	}
	if *workers != 0 {
		config.Workers = *workers
	}
	if *idleTimeout >= 0 {
		config.IdleTimeout = *idleTimeout
	}
	if *dhGroup != "" {
		config.DH.Group = *dhGroup
	}
	if *manifest != "" {
		config.Storage.Manifest = *manifest
	}
	if *protocolLog != "" {
		config.ProtocolLog = *protocolLog
	}
	if *advertise {
		config.Discovery.Enabled = true
	}
	if *verbose {
		config.LogLevel = "debug"
	}

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	srv, err := service.NewServer(config, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", "signal", sig.String())

	done := make(chan error, 1)
	go func() { done <- srv.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Warn("error during shutdown", "error", err)
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	case <-sigCh:
		logger.Warn("forced exit")
	}
}
