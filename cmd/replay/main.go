package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tochemey/goakt/v3/log"

	"github.com/lao-tseu-is-alive/go-flock-sync/internal/telemetry"
	"github.com/lao-tseu-is-alive/go-flock-sync/internal/transport"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/simulation"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/syncproto"
)

// batch is how many datagrams go into one telemetry sample.
const batch = 100

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		file       = flag.String("f", "", "pcap capture to replay")
		port       = flag.Int("port", 0, "only replay datagrams sent to this UDP port (0 = any)")
		configPath = flag.String("config", "", "YAML or JSON configuration file")
	)
	flag.Parse()
	if *file == "" {
		flag.Usage()
		return errors.New("missing -f")
	}

	cfg := simulation.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = simulation.LoadConfig(*configPath); err != nil {
			return err
		}
	}

	logger := log.New(cfg.Level(), os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor, err := telemetry.Start(ctx, telemetry.RoleReplay, cfg.Telemetry.Enabled,
		cfg.Telemetry.OutputDir, cfg.LogInterval(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := monitor.Stop(context.Background()); err != nil {
			logger.Warnf("stopping telemetry: %v", err)
		}
	}()

	mirror := syncproto.NewMirror()
	var (
		sample    telemetry.Sample
		malformed int
	)
	start := time.Now()
	stats, err := transport.OpenCapture(ctx, *file, *port, func(payload []byte) error {
		sample.Messages++
		sample.Bytes += len(payload)
		msg, err := syncproto.Decode(payload)
		if err != nil {
			if !cfg.DropMalformed {
				return err
			}
			malformed++
			sample.Dropped++
		} else if !mirror.Apply(msg) {
			sample.Dropped++
		}
		if sample.Messages == batch {
			sample.Tick = mirror.Stats().Controls
			sample.Stats = telemetry.Measure(mirror.Table())
			monitor.Report(sample)
			sample = telemetry.Sample{}
		}
		return nil
	})
	if sample.Messages > 0 {
		sample.Stats = telemetry.Measure(mirror.Table())
		monitor.Report(sample)
	}
	if err != nil {
		return fmt.Errorf("replaying %s: %w", *file, err)
	}

	ms := mirror.Stats()
	fs := telemetry.Measure(mirror.Table())
	logger.Infof("replayed %s in %v: %d frames, %d datagrams, %d skipped, %d malformed",
		*file, time.Since(start), stats.Packets, stats.Datagrams, stats.Skipped, malformed)
	logger.Infof("mirror: %d slots, %d controls, %d resizes, %d applied, %d dropped",
		mirror.Len(), ms.Controls, ms.Resizes, ms.Applied, ms.Dropped)
	logger.Infof("flock: mean speed %.3f ± %.3f, polarization %.2f", fs.MeanSpeed, fs.SpeedStdDev, fs.Polarization)
	return nil
}
