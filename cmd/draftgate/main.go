// Package main is the entry point for the draftgate admission gateway.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/draftgate/draftgate/internal/config"
	"github.com/draftgate/draftgate/internal/server"
	"github.com/draftgate/draftgate/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.App, os.Stdout)

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newLogger writes console lines in development and JSON everywhere else.
func newLogger(app config.AppConfig, w io.Writer) *logger.Logger {
	if app.IsDevelopment() {
		return logger.NewConsole(w, app.LogLevel).With("env", app.Env)
	}
	return logger.New(w, app.LogLevel).With("env", app.Env)
}
