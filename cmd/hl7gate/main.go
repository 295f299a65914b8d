package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/hl7gate/internal/admin"
	"github.com/danmuck/hl7gate/internal/config"
	"github.com/danmuck/hl7gate/internal/gateway"
	"github.com/danmuck/hl7gate/internal/logging"
	"github.com/danmuck/hl7gate/internal/protocol/mllp"
	"github.com/danmuck/hl7gate/internal/storage"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "hl7gate: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, flagSet, err := parseArgs(args, os.Stderr)
	if err != nil {
		return err
	}
	if opts.help {
		printHelp(os.Stderr, flagSet)
		return nil
	}

	logging.ConfigureRuntime()

	cfg, err := resolveConfig(opts, os.Getenv, func(msg string) {
		log.Warn().Msg(msg)
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	gw, err := gateway.New(gatewayConfig(cfg), store)
	if err != nil {
		return err
	}

	if cfg.AdminAddr != "" {
		srv := admin.Appear("hl7gate", cfg.AdminAddr, cfg.CorsOrigins, gw)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Error().Err(err).Str("addr", cfg.AdminAddr).Msg("admin server stopped")
			}
		}()
	}

	log.Info().
		Int("port", cfg.Port).
		Int("workers", cfg.Workers).
		Str("storage", store.Name()).
		Str("upload_failure", cfg.UploadFailure).
		Msg("hl7gate starting")

	err = gw.ListenAndServe(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("hl7gate stopped")
	return nil
}

func gatewayConfig(cfg config.Config) gateway.Config {
	gc := gateway.DefaultConfig()
	gc.Addr = cfg.ListenAddr()
	gc.Workers = cfg.Workers
	gc.ReadTimeout = cfg.ReadTimeout
	gc.WriteTimeout = cfg.WriteTimeout
	gc.Limits = mllp.Limits{MaxMessageBytes: cfg.MaxMessageBytes}
	gc.UploadFailure = gateway.UploadFailurePolicy(cfg.UploadFailure)
	return gc
}
