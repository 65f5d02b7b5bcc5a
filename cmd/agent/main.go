package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bilal/v2x-telemetry-agent/internal/communicator"
	"github.com/bilal/v2x-telemetry-agent/internal/config"
	"github.com/bilal/v2x-telemetry-agent/internal/forwarder"
	"github.com/bilal/v2x-telemetry-agent/internal/health"
	"github.com/bilal/v2x-telemetry-agent/internal/logger"
	"github.com/bilal/v2x-telemetry-agent/internal/replay"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	// Load config; a missing default file means built-in defaults
	path, _ := fs.GetString("config")
	if !fs.Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.LoadConfig(path, fs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Init logger
	logger.Init(cfg.Logging)
	log.Info().Str("agent", cfg.Agent.Name).Str("observer", cfg.Observer.Addr()).Msg("starting telemetry agent")

	if cfg.Replay.TracePath == "" {
		return errors.New("no trace to replay: set replay.trace_path or --trace")
	}
	events, err := replay.LoadTrace(cfg.Replay.TracePath)
	if err != nil {
		return fmt.Errorf("load trace: %w", err)
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	//------------------------------------------
	// OPTIONAL KAFKA MIRROR
	//------------------------------------------
	var opts []forwarder.Option
	if len(cfg.Kafka.Brokers) > 0 {
		mirror, err := communicator.NewKafkaMirror(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka mirror: %w", err)
		}
		defer func() {
			if err := mirror.Close(); err != nil {
				log.Warn().Err(err).Msg("kafka mirror close failed")
			}
		}()
		opts = append(opts, forwarder.WithMirror(mirror))
	}

	factory := func(host forwarder.Host, mobility forwarder.Mobility) *forwarder.Forwarder {
		sender := communicator.NewUDPSender(cfg.Observer.Addr(), cfg.Observer.WriteTimeout())
		nodeOpts := append([]forwarder.Option{forwarder.WithMobility(mobility)}, opts...)
		return forwarder.New(host, sender, nodeOpts...)
	}
	runner := replay.NewRunner(events, cfg.Replay.Speed, factory)

	//------------------------------------------
	// START HEALTH SERVER
	//------------------------------------------
	healthSrv := health.New(cfg.Health.Port, runner.Active)
	healthSrv.SetRunning(true)
	go func() {
		if err := healthSrv.Serve(); err != nil {
			log.Error().Err(err).Msg("health server stopped")
		}
	}()

	//------------------------------------------
	// REPLAY UNTIL DONE OR SIGNAL
	//------------------------------------------
	stats, err := runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Warn().Msg("shutdown signal received")
	} else if err != nil {
		return err
	}

	//------------------------------------------
	// SHUTDOWN SEQUENCE
	//------------------------------------------
	healthSrv.SetRunning(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("health server shutdown failed")
	}

	log.Info().Int("events", stats.Events).Int("nodes", stats.Nodes).Msg("agent stopped cleanly")
	return nil
}
