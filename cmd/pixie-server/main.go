// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// pixie-server is Pixie's server process: it owns the chunk store,
// the image registry, and the authoritative fleet state, and exposes
// them over three independent transports running as goroutines under
// one process — the UDP chunk transport, the TCP bulk-transfer
// transport, and the admin HTTP/WebSocket control plane — plus a
// periodic chunk-store garbage collector.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/pixie-fleet/pixie/internal/bijection"
	"github.com/pixie-fleet/pixie/internal/chunkstore"
	"github.com/pixie-fleet/pixie/internal/fleet"
	"github.com/pixie-fleet/pixie/internal/httpapi"
	"github.com/pixie-fleet/pixie/internal/imageregistry"
	"github.com/pixie-fleet/pixie/internal/tcpserver"
	"github.com/pixie-fleet/pixie/internal/udpserver"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/clock"
	"github.com/pixie-fleet/pixie/lib/config"
	"github.com/pixie-fleet/pixie/lib/process"
	"github.com/pixie-fleet/pixie/lib/version"
)

// gcInterval is how often the chunk store's garbage collector runs.
// Not part of spec.md's contract (it names the GC as an independent
// task but not its period); an hour is frequent enough that leaked
// chunks from an aborted UploadImage do not accumulate for long,
// infrequent enough that it never competes meaningfully with the
// transports for disk I/O.
const gcInterval = time.Hour

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("pixie-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config.yaml (overrides PIXIE_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("pixie-server %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("preparing storage directories: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	logger.Info("starting pixie-server", "version", version.Short(), "storage", cfg.Storage)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	store, err := chunkstore.New(filepath.Join(cfg.Storage, "chunks"))
	if err != nil {
		return fmt.Errorf("opening chunk store: %w", err)
	}
	registry, err := imageregistry.Open(filepath.Join(cfg.Storage, "images"), store)
	if err != nil {
		return fmt.Errorf("opening image registry: %w", err)
	}
	table, err := bijection.LoadConfig(cfg.StaticIPs)
	if err != nil {
		return fmt.Errorf("loading static IP reservations: %w", err)
	}
	fleetState, err := fleet.Open(filepath.Join(cfg.Storage, "registered.json"), table, clock.Real())
	if err != nil {
		return fmt.Errorf("opening fleet state: %w", err)
	}

	tcp := tcpserver.New(store, registry, fleetState, logger)
	udp := udpserver.New(store, registry, fleetState, table, clock.Real(), logger, cfg)
	admin := httpapi.New(fleetState, registry, store, clock.Real(), logger)

	var wg sync.WaitGroup
	errs := make(chan error, 4)

	runService := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	runService("tcp transport", func() error {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", wire.TCPPort))
		if err != nil {
			return err
		}
		return tcp.Serve(ctx, listener)
	})
	runService("udp transport", func() error {
		return udp.Serve(ctx, fmt.Sprintf(":%d", wire.ChunksPort), fmt.Sprintf(":%d", wire.HintPort))
	})
	runService("admin http", func() error {
		return admin.Serve(ctx, cfg.Addr())
	})
	runService("chunk store gc", func() error {
		return runGC(ctx, store, clock.Real(), logger)
	})

	var firstErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case firstErr = <-errs:
		logger.Error("service failed, shutting down", "error", firstErr)
		cancel()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		logger.Error("service failed during shutdown", "error", err)
	}
	return firstErr
}

func loadConfig(explicitPath string) (*config.Config, error) {
	if explicitPath != "" {
		return config.LoadFile(explicitPath)
	}
	return config.Load()
}

// runGC runs a chunk_store.GC pass every gcInterval until ctx is
// cancelled. A GC failure is a fatal invariant violation (spec.md
// §7's "chunk present on disk but not in index, vice versa" class),
// not a transient error, so it is returned rather than retried.
func runGC(ctx context.Context, store *chunkstore.Store, clk clock.Clock, logger *slog.Logger) error {
	ticker := clk.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := store.GC()
			if err != nil {
				return fmt.Errorf("gc: %w", err)
			}
			if result.ChunksRemoved > 0 {
				logger.Info("chunk store gc", "chunks_removed", result.ChunksRemoved, "bytes_freed", result.BytesFreed)
			}
		}
	}
}
