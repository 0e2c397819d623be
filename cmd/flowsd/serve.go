package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denismitr/flowstore/command"
	"github.com/denismitr/flowstore/internal/httpapi"
	"github.com/denismitr/flowstore/internal/logging"
	"github.com/denismitr/flowstore/internal/metrics"
	"github.com/denismitr/flowstore/query"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func runServe(c *cli.Context) error {
	cfg := configOf(c)

	if v := c.String("addr"); v != "" {
		cfg.Addr = v
	}
	if v := c.String("backend"); v != "" {
		cfg.Backend = v
	}
	if v := c.String("db"); v != "" {
		cfg.DBPath = v
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return errors.Wrap(err, "could not open store")
	}

	defer func() {
		if err := closeStore(); err != nil {
			log.WithError(err).Error("could not close store")
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.New(command.NewHandler(s, log), query.NewHandler(s), metrics.New(), log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}

	return nil
}
