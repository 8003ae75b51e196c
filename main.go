package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tripsense/app"
	"tripsense/config"
	qhttp "tripsense/http"
	"tripsense/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default $"+config.EnvPath+" or ./config.yaml)")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	// 2. Load artifacts and build pipelines
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	go a.Hub.Run(ctx)

	// 3. Start HTTP server
	server := qhttp.NewServer(a.Server, a.Handler, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 4. Handle graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}
	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	a.Handler.Wait()
	logger.Info("exiting")
}
