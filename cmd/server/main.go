package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/david/campus-notice/internal/api"
	"github.com/david/campus-notice/internal/app"
	"github.com/david/campus-notice/internal/config"
	"github.com/david/campus-notice/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default is $HOME/.campus-notice.yaml)")
	flag.Parse()

	log := logging.For("server")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		log.Fatal(err)
	}
	logging.SetFormat(cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, true)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	srv := api.NewServer(api.Deps{
		Runner:      a.Orchestrator,
		Auth:        a.Auth,
		Store:       a.Store,
		Notifier:    a.Notifier,
		Callbacks:   a.Callbacks,
		CORSOrigins: cfg.CORSOrigins,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.Infof("Server starting on port %s...", cfg.Port)
	if err := srv.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
