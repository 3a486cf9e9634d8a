// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// droidvetd is the triage daemon: it owns the task store, the dispatch
// loop, the sandbox pool, and the HTTP boundary.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/droidvet/droidvet/api"
	"github.com/droidvet/droidvet/artifact"
	"github.com/droidvet/droidvet/broker"
	"github.com/droidvet/droidvet/device"
	"github.com/droidvet/droidvet/devicepool"
	"github.com/droidvet/droidvet/lib/config"
	"github.com/droidvet/droidvet/lib/sqlitedb"
	"github.com/droidvet/droidvet/provider"
	"github.com/droidvet/droidvet/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "", "path to the YAML configuration file (required)")
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warn, error")
	pflag.Parse()

	if *configPath == "" {
		return fmt.Errorf("--config is required")
	}

	logger, err := buildLogger(*logLevel)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlitedb.Open(sqlitedb.Config{
		Path:   cfg.Database,
		Logger: logger,
		Schema: broker.Schema,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	artifacts, err := artifact.NewStore(cfg.ArtifactDir, logger)
	if err != nil {
		return err
	}

	provisioner := &devicepool.AutomationProvisioner{
		Binary:        cfg.Emulator.AutomationBinary,
		Dir:           cfg.Emulator.AutomationDir,
		InstancesFile: cfg.Emulator.InstancesFile,
		Timeout:       cfg.Emulator.ProvisionTimeout,
		Logger:        logger,
	}
	pool := devicepool.New(provisioner, cfg.Emulator.DesiredCount, logger)
	if cfg.Emulator.SeedFile != "" {
		if err := pool.LoadSeed(cfg.Emulator.SeedFile, "emulator"); err != nil {
			return err
		}
	}

	bridge := device.NewADBBridge(device.ADBConfig{
		Path:           cfg.Emulator.ADBPath,
		CommandTimeout: cfg.Emulator.CommandTimeout,
		Logger:         logger,
	})
	sessions := device.NewManager(device.ManagerConfig{
		Pool:           pool,
		Bridge:         bridge,
		Artifacts:      artifacts,
		Logger:         logger,
		ConnectRetries: cfg.Emulator.ConnectRetries,
		VNCURLTemplate: cfg.Emulator.VNCURLTemplate,
		VNCPort:        cfg.Emulator.VNCPort,
	})

	gateway := provider.NewGateway(provider.GatewayConfig{
		InferenceURL:  cfg.Providers.InferenceURL,
		ReputationURL: cfg.Providers.ReputationURL,
		Timeout:       cfg.Providers.Timeout,
		MaxAttempts:   cfg.Providers.MaxAttempts,
		Dynamic:       sessions,
		Logger:        logger,
	})

	dispatcher := worker.NewManager(
		worker.NewTextWorker(gateway, logger),
		worker.NewLinkWorker(gateway, logger),
		worker.NewVisualWorker(gateway, logger),
		logger,
	)

	taskBroker := broker.New(broker.Config{
		DB:            db,
		QueueCapacity: cfg.Broker.QueueCapacity,
		Logger:        logger,
	})

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- taskBroker.Run(ctx, dispatcher, cfg.Broker.Workers, cfg.Broker.SweepInterval)
	}()

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.New(taskBroker, sessions, pool, logger).Routes(),
	}
	serverDone := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Listen)
		serverDone <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serverDone:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("dispatch loop: %w", err)
	}
	return nil
}

func buildLogger(level string) (*slog.Logger, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parsed})
	return slog.New(handler), nil
}
