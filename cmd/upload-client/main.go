// Command upload-client sends files to an upload-server.
//
// Usage:
//
//	upload-client [flags] [file...]
//
// Flags:
//
//	-addr string        Server address (default "localhost:5000")
//	-discover           Find the server via mDNS instead of -addr
//	-negotiate          Offer the default cipher suites before uploading
//	-name string        Remote name (single file only; default: base name)
//	-chunk int          Raw bytes per DATA message (default 16384)
//	-retries int        Connection attempts per upload (default 1)
//	-protocol-log path  Write protocol events to this file
//	-interactive        Start the interactive console
//	-v                  Verbose (debug) logging
//
// Each file is uploaded over its own connection, since the server accepts
// one file per session.
//
// Interactive Commands:
//
//	connect [addr]      - Connect and run the key exchange
//	discover            - Browse for upload servers
//	negotiate [c m d]   - Offer comma-separated cipher/mode/digest lists
//	upload <file> [as]  - Open, send and close
//	open <name>         - Open a remote file
//	send <file>         - Send a local file's content
//	close               - Finish the session
//	status              - Show connection status
//	quit                - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/TomasCostaK/secure-comms/cmd/upload-client/interactive"
	"github.com/TomasCostaK/secure-comms/pkg/client"
	"github.com/TomasCostaK/secure-comms/pkg/discovery"
	"github.com/TomasCostaK/secure-comms/pkg/log"
	"github.com/TomasCostaK/secure-comms/pkg/negotiation"
)

var (
	addr        = flag.String("addr", "localhost:5000", "Server address")
	discover    = flag.Bool("discover", false, "Find the server via mDNS instead of -addr")
	negotiate   = flag.Bool("negotiate", false, "Offer the default cipher suites before uploading")
	remoteName  = flag.String("name", "", "Remote name (single file only)")
	chunkSize   = flag.Int("chunk", client.DefaultChunkSize, "Raw bytes per DATA message")
	protocolLog = flag.String("protocol-log", "", "Write protocol events to this file")
	retries     = flag.Int("retries", 1, "Connection attempts per upload")
	interact    = flag.Bool("interactive", false, "Start the interactive console")
	verbose     = flag.Bool("v", false, "Verbose (debug) logging")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// run returns the exit code so deferred closes still flush.
func run() int {
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config := client.Config{
		ChunkSize: *chunkSize,
		Retry:     client.RetryConfig{Attempts: *retries},
		Logger:    logger,
	}
	var mirror log.Logger
	if *verbose {
		mirror = log.NewSlogAdapter(logger)
	}
	config.ProtocolLogger = log.Tee(mirror)
	if *protocolLog != "" {
		fl, err := log.NewFileLogger(*protocolLog)
		if err != nil {
			logger.Error("failed to open protocol log", "error", err)
			return 1
		}
		defer fl.Close()
		config.ProtocolLogger = log.Tee(fl, mirror)
	}

	if *interact {
		console, err := interactive.New(config, *addr)
		if err != nil {
			logger.Error("failed to start console", "error", err)
			return 1
		}
		config.Logger = slog.New(slog.NewTextHandler(console.Stderr(), &slog.HandlerOptions{Level: level}))
		console.SetClientConfig(config)
		console.Run(ctx, cancel)
		return 0
	}

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one file is required")
		flag.Usage()
		return 1
	}
	if *remoteName != "" && len(files) > 1 {
		fmt.Fprintln(os.Stderr, "Error: -name needs exactly one file")
		return 1
	}

	target := *addr
	if *discover {
		found, err := discoverServer(ctx)
		if err != nil {
			logger.Error("discovery failed", "error", err)
			return 1
		}
		target = found
		logger.Info("discovered server", "addr", target)
	}

	failed := 0
	for _, path := range files {
		name := *remoteName
		if name == "" {
			name = filepath.Base(path)
		}
		if err := uploadFile(ctx, target, config, path, name); err != nil {
			logger.Error("upload failed", "file", path, "error", err)
			failed++
			continue
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func discoverServer(ctx context.Context) (string, error) {
	browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	svc, err := browser.FindFirst(ctx)
	if err != nil {
		return "", err
	}
	return svc.Address()
}

func uploadFile(ctx context.Context, addr string, config client.Config, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := client.Dial(ctx, addr, config)
	if err != nil {
		return err
	}

	if *negotiate {
		suite, err := c.Negotiate(negotiation.Offer{
			Ciphers: negotiation.CipherPreference,
			Modes:   negotiation.ModePreference,
			Digests: negotiation.DigestPreference,
		})
		if err != nil {
			return err
		}
		config.Logger.Info("suite negotiated", "suite", suite.String())
	}

	n, err := c.Upload(name, f)
	if err != nil {
		return err
	}
	config.Logger.Info("uploaded", "file", path, "as", name, "bytes", n)
	return nil
}
