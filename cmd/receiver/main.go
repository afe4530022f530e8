package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tochemey/goakt/v3/log"
	"golang.org/x/sync/errgroup"

	"github.com/lao-tseu-is-alive/go-flock-sync/internal/telemetry"
	"github.com/lao-tseu-is-alive/go-flock-sync/internal/transport"
	"github.com/lao-tseu-is-alive/go-flock-sync/internal/viewer"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/simulation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "receiver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	d := simulation.DefaultConfig()
	var (
		configPath = flag.String("config", "", "YAML or JSON configuration file")
		port       = flag.Int("p", d.Listen.Port, "listen port")
		host       = flag.String("h", d.Listen.Host, "listen host")
		headless   = flag.Bool("headless", false, "run without a window")
	)
	flag.Parse()

	cfg := d
	if *configPath != "" {
		var err error
		if cfg, err = simulation.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "p":
			cfg.Listen.Port = *port
		case "h":
			cfg.Listen.Host = *host
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.New(cfg.Level(), os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor, err := telemetry.Start(ctx, telemetry.RoleReceiver, cfg.Telemetry.Enabled,
		cfg.Telemetry.OutputDir, cfg.LogInterval(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := monitor.Stop(context.Background()); err != nil {
			logger.Warnf("stopping telemetry: %v", err)
		}
	}()

	receiver, err := transport.ListenReceiver(cfg.Listen.String())
	if err != nil {
		return err
	}
	logger.Infof("listening on %s (run %s)", receiver.Addr(), monitor.RunID())

	consumer := simulation.NewConsumer(cfg, logger, simulation.WithConsumerReporter(monitor))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return consumer.Run(gctx, receiver)
	})

	if !*headless {
		game := viewer.New(consumer, viewer.Options{Title: "flock receiver", Params: cfg.FlockParams()}, logger)
		if err := game.Run(); err != nil {
			logger.Errorf("viewer: %v", err)
		}
		consumer.Stop()
	}
	err = g.Wait()
	stats := consumer.MirrorStats()
	logger.Infof("mirror: %d controls, %d resizes, %d applied, %d dropped",
		stats.Controls, stats.Resizes, stats.Applied, stats.Dropped)
	return err
}
