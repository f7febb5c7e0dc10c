package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"muxlink/pkg/config"
	"muxlink/pkg/echo"
	"muxlink/pkg/observability"
	"muxlink/pkg/protocol/codec"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()
	os.Exit(run(*configPath))
}

func run(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	wire, err := codec.NewRegistry().Lookup(cfg.Client.WireCodec)
	if err != nil {
		zap.L().Error("wire codec", zap.Error(err))
		return 1
	}
	srv := echo.New(echo.Options{
		Codec: wire,
		Echo:  cfg.Echo.Echo,
		Acks:  cfg.Echo.Acks,
		Pongs: cfg.Echo.Pongs,
		Log:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	zap.L().Info("muxlink-echo started", zap.Strings("listen", cfg.Echo.Listen), zap.String("codec", cfg.Client.WireCodec))
	if err := srv.ListenAndServe(ctx, cfg.Echo.Listen); err != nil {
		zap.L().Error("echo stopped", zap.Error(err))
		return 1
	}
	zap.L().Info("muxlink-echo stopped")
	return 0
}
