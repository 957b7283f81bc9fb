// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// warecell-feeder publishes fixture payloads onto the bus so the rest
// of the stack can be exercised without cameras or a master
// controller. The fixture file is JSONC (JSON with comments), an array
// of messages:
//
//	[
//	  // a camera frame
//	  {"topic": "mmh_cam/detected_boxes", "payload": {"boxes": []}},
//	  {"topic": "master/state", "payload": {"data": "online"}, "retain": true}
//	]
//
// With --loop the whole file is replayed every --interval until
// interrupted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/warecell-foundation/warecell/bus"
	"github.com/warecell-foundation/warecell/lib/config"
)

// fixture is one message from the fixture file.
type fixture struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	Retain  bool            `json:"retain"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "warecell-feeder: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, fixturePath string
	var loop bool
	var interval time.Duration

	flags := pflag.NewFlagSet("warecell-feeder", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to warecell.yaml (default: $WARECELL_CONFIG)")
	flags.StringVar(&fixturePath, "fixtures", "", "JSONC file with messages to publish (required)")
	flags.BoolVar(&loop, "loop", false, "replay the fixture file until interrupted")
	flags.DurationVar(&interval, "interval", 5*time.Second, "pause between replays with --loop")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if fixturePath == "" {
		return fmt.Errorf("--fixtures is required")
	}

	fixtures, err := loadFixtures(fixturePath)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := bus.DialMQTT(ctx, bus.MQTTConfig{
		BrokerURL:      cfg.Broker.URL,
		ClientID:       cfg.Broker.ClientID + "-feeder",
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		ConnectTimeout: cfg.Broker.ConnectTimeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		for _, f := range fixtures {
			if err := conn.Publish(ctx, f.Topic, bus.QoSFeed, f.Retain, f.Payload); err != nil {
				return fmt.Errorf("publishing to %s: %w", f.Topic, err)
			}
			logger.Info("published", "topic", f.Topic, "bytes", len(f.Payload))
		}
		if !loop {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func loadFixtures(path string) ([]fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	var fixtures []fixture
	if err := json.Unmarshal(jsonc.ToJSON(data), &fixtures); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i, f := range fixtures {
		if f.Topic == "" {
			return nil, fmt.Errorf("%s: message %d has no topic", path, i)
		}
	}
	return fixtures, nil
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
