package main

import (
	"context"
	"errors"
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
		fmt.Fprintf(os.Stderr, "sender: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	d := simulation.DefaultConfig()
	var (
		configPath = flag.String("config", "", "YAML or JSON configuration file")
		srcPort    = flag.Int("p", d.Source.Port, "source port")
		srcHost    = flag.String("h", d.Source.Host, "source host")
		dstPort    = flag.Int("P", d.Destination.Port, "destination port")
		dstHost    = flag.String("H", d.Destination.Host, "destination host")
		rate       = flag.Int("r", d.RateMs, "milliseconds between ticks")
		num        = flag.Int("n", d.NumObjects, "number of particles")
		burst      = flag.Int("b", d.Burst, "particles sent per tick")
		capture    = flag.String("capture", "", "write every sent datagram to this pcap file")
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
			cfg.Source.Port = *srcPort
		case "h":
			cfg.Source.Host = *srcHost
		case "P":
			cfg.Destination.Port = *dstPort
		case "H":
			cfg.Destination.Host = *dstHost
		case "r":
			cfg.RateMs = *rate
		case "n":
			cfg.NumObjects = *num
		case "b":
			cfg.Burst = *burst
		case "capture":
			cfg.Capture = *capture
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.New(cfg.Level(), os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor, err := telemetry.Start(ctx, telemetry.RoleSender, cfg.Telemetry.Enabled,
		cfg.Telemetry.OutputDir, cfg.LogInterval(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := monitor.Stop(context.Background()); err != nil {
			logger.Warnf("stopping telemetry: %v", err)
		}
	}()

	var pcap *transport.Capture
	if cfg.Capture != "" {
		if pcap, err = transport.CreateCapture(cfg.Capture); err != nil {
			return err
		}
		logger.Infof("capturing sent datagrams to %s", cfg.Capture)
	}
	sender, err := transport.DialSender(cfg.Source.String(), cfg.Destination.String(), pcap)
	if err != nil {
		return errors.Join(err, pcap.Close())
	}
	defer func() {
		if err := sender.Close(); err != nil {
			logger.Warnf("closing sender: %v", err)
		}
	}()

	producer := simulation.NewProducer(cfg, logger, simulation.WithReporter(monitor))
	logger.Infof("sending %d particles from %s to %s every %v, %d per tick (run %s)",
		cfg.NumObjects, cfg.Source, cfg.Destination, cfg.Interval(), cfg.Burst, monitor.RunID())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return producer.Run(gctx, sender)
	})

	if !*headless {
		game := viewer.New(producer, viewer.Options{Title: "flock sender", Params: cfg.FlockParams()}, logger)
		if err := game.Run(); err != nil {
			logger.Errorf("viewer: %v", err)
		}
		producer.Stop()
		stop()
	}
	return g.Wait()
}
