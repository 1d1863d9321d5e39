package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobmatnyc/the-island-sub004/internal/app"
	"github.com/bobmatnyc/the-island-sub004/internal/config"
	"github.com/bobmatnyc/the-island-sub004/internal/server"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
)

func main() {
	cfg := config.Load()
	app.InitLogger(cfg, "server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize", "err", err)
	}
	defer a.Close()

	if err := server.Init(ctx, a); err != nil {
		logger.Fatal("Server failed", "err", err)
	}
}
