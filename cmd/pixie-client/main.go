// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/pixie-fleet/pixie/internal/diskengine"
	"github.com/pixie-fleet/pixie/internal/tcpclient"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/process"
	"github.com/pixie-fleet/pixie/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: pixie-client <register|push|pull> [flags]")
	}

	subcommand, rest := args[0], args[1:]
	switch subcommand {
	case "register":
		return runRegister(rest)
	case "push":
		return runPush(rest)
	case "pull":
		return runPull(rest)
	case "-version", "--version":
		fmt.Printf("pixie-client %s\n", version.Info())
		return nil
	default:
		return fmt.Errorf("unknown subcommand %q (want register, push, or pull)", subcommand)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// clientFlags are common to every subcommand: the server's TCP control
// address and the unit's own MAC. Subcommands add their own on top.
type clientFlags struct {
	server string
	mac    string
}

func (f *clientFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.server, "server", "", "pixie-server TCP control address (host:port)")
	flagSet.StringVar(&f.mac, "mac", "", "this unit's MAC address")
}

func (f *clientFlags) parsedMAC() (wire.MAC, error) {
	if f.mac == "" {
		return wire.MAC{}, fmt.Errorf("--mac is required")
	}
	return wire.ParseMAC(f.mac)
}

func runRegister(args []string) error {
	var flags clientFlags
	var group string
	var row, col uint8

	flagSet := pflag.NewFlagSet("register", pflag.ContinueOnError)
	flags.register(flagSet)
	flagSet.StringVar(&group, "group", "", "fleet group name")
	flagSet.Uint8Var(&row, "row", 0, "row coordinate within the group")
	flagSet.Uint8Var(&col, "col", 0, "column coordinate within the group")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	mac, err := flags.parsedMAC()
	if err != nil {
		return err
	}
	if flags.server == "" {
		return fmt.Errorf("--server is required")
	}
	if group == "" {
		return fmt.Errorf("--group is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := tcpclient.Dial(ctx, flags.server)
	if err != nil {
		return err
	}
	defer client.Close()

	staticIP, action, err := client.Register(mac, group, row, col)
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}

	logger := newLogger()
	logger.Info("registered", "mac", mac, "group", group, "row", row, "col", col,
		"static_ip", staticIP, "action", action.Kind)
	return nil
}

func runPush(args []string) error {
	var flags clientFlags
	var device, image string

	flagSet := pflag.NewFlagSet("push", pflag.ContinueOnError)
	flags.register(flagSet)
	flagSet.StringVar(&device, "device", "", "block device or file to read")
	flagSet.StringVar(&image, "image", "", "name to publish the resulting image under")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	mac, err := flags.parsedMAC()
	if err != nil {
		return err
	}
	if flags.server == "" || device == "" || image == "" {
		return fmt.Errorf("--server, --device, and --image are required")
	}

	logger := newLogger()

	dev, err := diskengine.Open(device)
	if err != nil {
		return err
	}
	defer dev.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := tcpclient.Dial(ctx, flags.server)
	if err != nil {
		return err
	}
	defer client.Close()

	progressConn, progressAddr, err := dialProgress(flags.server)
	if err != nil {
		logger.Warn("progress reporting disabled", "error", err)
	} else {
		defer progressConn.Close()
	}

	pushed, err := diskengine.Push(dev, client, mac, progressConn, progressAddr, image, wire.Image{}, func(done, total int) {
		logger.Info("push progress", "done", done, "total", total)
	})
	if err != nil {
		return err
	}

	if err := client.ActionComplete(mac, wire.Progress{ChunksDone: uint32(len(pushed.Disk)), ChunksTotal: uint32(len(pushed.Disk))}); err != nil {
		return fmt.Errorf("reporting completion: %w", err)
	}
	logger.Info("push complete", "image", image, "chunks", len(pushed.Disk))
	return nil
}

func runPull(args []string) error {
	var flags clientFlags
	var device, image string

	flagSet := pflag.NewFlagSet("pull", pflag.ContinueOnError)
	flags.register(flagSet)
	flagSet.StringVar(&device, "device", "", "block device or file to write")
	flagSet.StringVar(&image, "image", "", "name of the image to fetch")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	mac, err := flags.parsedMAC()
	if err != nil {
		return err
	}
	if flags.server == "" || device == "" || image == "" {
		return fmt.Errorf("--server, --device, and --image are required")
	}

	logger := newLogger()

	dev, err := diskengine.Open(device)
	if err != nil {
		return err
	}
	defer dev.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := tcpclient.Dial(ctx, flags.server)
	if err != nil {
		return err
	}
	defer client.Close()

	udpConn, chunkAddr, err := dialProgress(flags.server)
	if err != nil {
		return fmt.Errorf("opening chunk transport socket: %w", err)
	}
	defer udpConn.Close()

	fetched, err := diskengine.Pull(ctx, dev, client, mac, udpConn, chunkAddr, chunkAddr, image, logger)
	if err != nil {
		return err
	}

	if err := client.ActionComplete(mac, wire.Progress{ChunksDone: uint32(len(fetched.Disk)), ChunksTotal: uint32(len(fetched.Disk))}); err != nil {
		return fmt.Errorf("reporting completion: %w", err)
	}
	logger.Info("pull complete", "image", image, "chunks", len(fetched.Disk))
	return nil
}

// dialProgress opens an ephemeral local UDP socket and resolves the
// server's chunk-transport address (the TCP control host, on
// wire.ChunksPort) for sending DataRequest/ActionProgress datagrams
// and, for pull, receiving DataPackets back on the same socket.
func dialProgress(serverAddr string) (*net.UDPConn, *net.UDPAddr, error) {
	host, err := chunkHost(serverAddr)
	if err != nil {
		return nil, nil, err
	}
	chunkAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(wire.ChunksPort)))
	if err != nil {
		return nil, nil, fmt.Errorf("resolving chunk transport address: %w", err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, nil, fmt.Errorf("opening local udp socket: %w", err)
	}
	return conn, chunkAddr, nil
}

// chunkHost extracts the host portion of a "host:port" server address,
// pulled out of dialProgress so it can be tested without a network.
func chunkHost(serverAddr string) (string, error) {
	host, _, err := net.SplitHostPort(serverAddr)
	if err != nil {
		return "", fmt.Errorf("parsing server address %q: %w", serverAddr, err)
	}
	return host, nil
}
