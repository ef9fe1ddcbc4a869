package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Abraxas-365/examforge/pkg/config"
	"github.com/Abraxas-365/examforge/pkg/logx"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logx.Debug("no .env file found, using process environment")
	}

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logx.SetLevel(logx.LevelDebug)
	case "warn":
		logx.SetLevel(logx.LevelWarn)
	case "error":
		logx.SetLevel(logx.LevelError)
	default:
		logx.SetLevel(logx.LevelInfo)
	}

	logx.Info("🚀 Starting ExamForge worker...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	container := NewContainer(ctx, cfg)
	defer container.Cleanup()

	app := container.API.App()
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logx.Infof("🌐 Admin API listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			logx.Fatalf("Admin API failed: %v", err)
		}
	}()

	// Blocks until ctx is cancelled, then drains the in-flight job.
	if err := container.Worker.Start(ctx); err != nil {
		logx.Fatalf("Worker failed: %v", err)
	}

	if err := app.Shutdown(); err != nil {
		logx.WithError(err).Warn("admin API shutdown failed")
	}
	logx.Info("👋 ExamForge worker stopped")
}
