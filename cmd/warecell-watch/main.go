// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// warecell-watch runs the full listening stack against a live broker:
// it subscribes the cell's topic families, keeps the snapshot store
// current, and tracks order traffic. On SIGINT/SIGTERM it reports its
// counters and, with --dump, writes the snapshot to a seed file that a
// later run (or another binary) can load with --seed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/warecell-foundation/warecell/bus"
	"github.com/warecell-foundation/warecell/lib/config"
	"github.com/warecell-foundation/warecell/order"
	"github.com/warecell-foundation/warecell/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "warecell-watch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, seedPath, dumpPath string

	flags := pflag.NewFlagSet("warecell-watch", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to warecell.yaml (default: $WARECELL_CONFIG)")
	flags.StringVar(&seedPath, "seed", "", "snapshot file to load at startup (overrides config)")
	flags.StringVar(&dumpPath, "dump", "", "write the snapshot to this file on shutdown")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := state.New()
	if seedPath == "" {
		seedPath = cfg.Snapshot.SeedPath
	}
	if seedPath != "" {
		applied, err := store.LoadSeed(seedPath)
		if err != nil {
			return fmt.Errorf("loading seed: %w", err)
		}
		logger.Info("seed loaded", "path", seedPath, "entries", applied)
	}

	conn, err := bus.DialMQTT(ctx, bus.MQTTConfig{
		BrokerURL:      cfg.Broker.URL,
		ClientID:       cfg.Broker.ClientID,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		ConnectTimeout: cfg.Broker.ConnectTimeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	tracker, err := order.NewTracker(order.Config{
		Conn:     conn,
		Store:    store,
		Timeout:  cfg.Orders.Timeout.Std(),
		SenderID: cfg.Orders.SenderID,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	listener, err := bus.NewListener(bus.ListenerConfig{
		Conn:   conn,
		Store:  store,
		Orders: tracker,
		Topics: cfg.Topics,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}
	logger.Info("listening", "broker", cfg.Broker.URL)

	<-ctx.Done()

	stats := listener.Stats()
	logger.Info("shutting down",
		"received", stats.Received,
		"malformed", stats.Malformed,
		"stale", stats.Stale)

	if dumpPath != "" {
		tag, err := state.ParseCompressionTag(cfg.Snapshot.Compression)
		if err != nil {
			return err
		}
		if err := store.WriteSnapshot(dumpPath, tag); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
		logger.Info("snapshot written", "path", dumpPath, "compression", tag)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
