package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fathima-sithara/school-chat/internal/config"
	"github.com/fathima-sithara/school-chat/internal/logger"
	"github.com/fathima-sithara/school-chat/internal/server"
)

func main() {
	cfgPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	lg, err := logger.New(cfg.IsDev(), cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	srv, err := server.New(ctx, cfg, lg)
	cancel()
	if err != nil {
		lg.Fatalw("startup failed", "error", err)
	}

	errs := make(chan error, 1)
	go func() { errs <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		lg.Errorw("server stopped", "error", err)
	case sig := <-quit:
		lg.Infow("signal received", "signal", sig.String())
	}

	ctx, cancel = context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Errorw("shutdown", "error", err)
	}
	lg.Info("school-chat stopped")
}
