// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

// warecell-order-mock stands in for the master controller's order
// handling. It subscribes to order requests, waits --delay to simulate
// the transport, then publishes a result echoing the request's
// correlation id. Cancel commands received during the delay suppress
// the result and are acknowledged instead, which exercises the
// tracker's cancellation path end to end.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/warecell-foundation/warecell/bus"
	"github.com/warecell-foundation/warecell/lib/config"
	"github.com/warecell-foundation/warecell/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "warecell-order-mock: %v\n", err)
		os.Exit(1)
	}
}

// handler simulates the master's order execution.
type handler struct {
	conn    bus.Conn
	logger  *slog.Logger
	delay   time.Duration
	fail    bool
	baseCtx context.Context

	mu        sync.Mutex
	cancelled map[string]bool
}

func run() error {
	var configPath string
	var delay time.Duration
	var fail bool

	flags := pflag.NewFlagSet("warecell-order-mock", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to warecell.yaml (default: $WARECELL_CONFIG)")
	flags.DurationVar(&delay, "delay", 5*time.Second, "simulated transport duration")
	flags.BoolVar(&fail, "fail", false, "report every order as failed")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := bus.DialMQTT(ctx, bus.MQTTConfig{
		BrokerURL:      cfg.Broker.URL,
		ClientID:       cfg.Broker.ClientID + "-order-mock",
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		ConnectTimeout: cfg.Broker.ConnectTimeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	h := &handler{
		conn:      conn,
		logger:    logger,
		delay:     delay,
		fail:      fail,
		baseCtx:   ctx,
		cancelled: make(map[string]bool),
	}
	if err := conn.Subscribe(ctx, wire.TopicOrderRequest, bus.QoSOrder, h.handleRequest); err != nil {
		return err
	}
	if err := conn.Subscribe(ctx, wire.TopicOrderCancel, bus.QoSOrder, h.handleCancel); err != nil {
		return err
	}

	logger.Info("waiting for orders",
		"broker", cfg.Broker.URL,
		"delay", delay,
		"fail", fail)
	<-ctx.Done()
	return nil
}

func (h *handler) handleRequest(msg bus.Message) {
	var req wire.OrderRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		h.logger.Warn("dropping malformed order request", "error", err)
		return
	}
	id := req.Header.CorrelationID
	h.logger.Info("order received",
		"correlation_id", id,
		"from", req.StartingModule.Namespace,
		"to", req.Goal.Namespace)

	// The delay runs on its own goroutine so a cancel arriving
	// meanwhile can be handled.
	go func() {
		select {
		case <-h.baseCtx.Done():
			return
		case <-time.After(h.delay):
		}

		h.mu.Lock()
		cancelled := h.cancelled[id]
		h.mu.Unlock()
		if cancelled {
			h.logger.Info("suppressing result for cancelled order", "correlation_id", id)
			return
		}

		result := wire.OrderResult{
			Header: wire.Header{
				Timestamp:     unixSeconds(time.Now()),
				ModuleID:      "order_mock",
				CorrelationID: id,
				Version:       1.0,
			},
			Success: !h.fail,
		}
		if h.fail {
			result.Info = "transport simulation forced to fail"
		}
		h.publishJSON(wire.TopicOrderResponse+"/"+id, result)
		h.logger.Info("result published", "correlation_id", id, "success", result.Success)
	}()
}

func (h *handler) handleCancel(msg bus.Message) {
	var cmd wire.OrderCancel
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		h.logger.Warn("dropping malformed cancel", "error", err)
		return
	}
	id := cmd.Header.CorrelationID

	h.mu.Lock()
	h.cancelled[id] = true
	h.mu.Unlock()
	h.logger.Info("order cancelled", "correlation_id", id)

	ack := wire.OrderCancelAck{
		Header: wire.Header{
			Timestamp:     unixSeconds(time.Now()),
			ModuleID:      "order_mock",
			CorrelationID: id,
		},
	}
	h.publishJSON(wire.TopicOrderCancelAck+"/"+id, ack)
}

func (h *handler) publishJSON(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encoding payload", "topic", topic, "error", err)
		return
	}
	if err := h.conn.Publish(h.baseCtx, topic, bus.QoSOrder, false, data); err != nil {
		h.logger.Error("publishing", "topic", topic, "error", err)
	}
}

func unixSeconds(at time.Time) float64 {
	return float64(at.UnixNano()) / float64(time.Second)
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
