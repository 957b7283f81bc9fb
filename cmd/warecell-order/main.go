// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// warecell-order dispatches one transport order from the command line
// and waits for the result, exercising the dispatch path end to end.
// It listens to the module feed long enough to resolve the start and
// goal modules from live state, then triggers the order and prints the
// outcome. Exit status is 0 only for a completed order.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/warecell-foundation/warecell/bus"
	"github.com/warecell-foundation/warecell/cell"
	"github.com/warecell-foundation/warecell/lib/config"
	"github.com/warecell-foundation/warecell/order"
	"github.com/warecell-foundation/warecell/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "warecell-order: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, from, to string
	var boxID int
	var settle time.Duration

	flags := pflag.NewFlagSet("warecell-order", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to warecell.yaml (default: $WARECELL_CONFIG)")
	flags.StringVar(&from, "from", "", "starting module namespace (required)")
	flags.StringVar(&to, "to", "", "goal module namespace (required)")
	flags.IntVar(&boxID, "box", -1, "cargo box id (default: generic cargo descriptor)")
	flags.DurationVar(&settle, "settle", 3*time.Second, "how long to collect live state before dispatching")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if from == "" || to == "" {
		return fmt.Errorf("--from and --to are required")
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

	conn, err := bus.DialMQTT(ctx, bus.MQTTConfig{
		BrokerURL:      cfg.Broker.URL,
		ClientID:       cfg.Broker.ClientID + "-order",
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		ConnectTimeout: cfg.Broker.ConnectTimeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	store := state.New()
	if cfg.Snapshot.SeedPath != "" {
		applied, err := store.LoadSeed(cfg.Snapshot.SeedPath)
		if err != nil {
			return fmt.Errorf("loading seed: %w", err)
		}
		logger.Info("seed loaded", "path", cfg.Snapshot.SeedPath, "entries", applied)
	}

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

	service, err := cell.New(cell.Config{
		Store:            store,
		Tracker:          tracker,
		MasterStaleAfter: cfg.Cell.MasterStaleAfter.Std(),
		DirectHopLimit:   cfg.Cell.DirectHopLimitMM,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	// Let the retained layout broadcasts land before resolving modules.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settle):
	}

	record, err := service.TriggerOrder(ctx, from, to, boxID)
	if err != nil {
		return err
	}

	fmt.Printf("order %s: %s\n", record.CorrelationID, record.State)
	if record.State != state.OrderCompleted {
		return fmt.Errorf("order not completed: %s", record.State)
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
