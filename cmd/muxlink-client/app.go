package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"muxlink/pkg/client"
	"muxlink/pkg/config"
	"muxlink/pkg/observability"
	"muxlink/pkg/protocol"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	if opts.URL != "" {
		cfg.Client.URL = opts.URL
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("muxlink-client started", zap.String("app", cfg.AppName))
	zap.L().Debug("effective configuration", zap.Any("config", cfg))

	prio, err := protocol.ParsePriority(opts.Priority)
	if err != nil {
		zap.L().Error("bad priority", zap.Error(err))
		return 2
	}
	var payload any
	if err := json.Unmarshal([]byte(opts.Payload), &payload); err != nil {
		zap.L().Error("payload is not valid JSON", zap.Error(err))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := client.New(cfg.Client, client.WithLogger(logger))
	if err != nil {
		zap.L().Error("failed to create client", zap.Error(err))
		return 1
	}
	defer c.Close()

	c.OnMessage(client.AnyType, client.HandlerFunc(func(_ context.Context, m *protocol.Inbound) error {
		zap.L().Info("inbound", zap.String("type", m.Type), zap.String("id", m.ID), zap.ByteString("payload", m.Payload))
		return nil
	}))
	c.OnError(func(err error) { zap.L().Warn("client error", zap.Error(err)) })

	err = retry.Do(
		func() error {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			return c.Connect(ctx, "")
		},
		retry.Attempts(opts.Retries),
		retry.Delay(cfg.Client.ReconnectInterval()),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zap.L().Warn("connect attempt failed", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		zap.L().Error("connect failed", zap.String("url", cfg.Client.URL), zap.Error(err))
		return 1
	}

	sendOpts := []client.SendOption{client.WithPriority(prio)}
	if opts.Ack {
		sendOpts = append(sendOpts, client.WithAck())
	}
	deliveries := make([]*client.Delivery, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		deliveries = append(deliveries, c.SendAsync(opts.Type, payload, sendOpts...))
	}
	if err := c.Flush(ctx); err != nil {
		zap.L().Error("flush failed", zap.Error(err))
		return 1
	}
	failed := 0
	for _, d := range deliveries {
		if err := d.Wait(ctx); err != nil {
			failed++
			zap.L().Warn("delivery failed", zap.String("id", d.ID()), zap.Error(err))
		}
	}

	if opts.Listen > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(opts.Listen):
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(c.Stats())
	_ = c.Disconnect(context.Background())
	if failed > 0 {
		return 1
	}
	return 0
}
