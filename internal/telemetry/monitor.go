package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tochemey/goakt/v3/actor"
	"github.com/tochemey/goakt/v3/goaktpb"
	"github.com/tochemey/goakt/v3/log"
	"google.golang.org/protobuf/types/known/structpb"
)

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Role     Role
	RunID    string        // generated when empty
	Interval time.Duration // window length
	Output   *Output       // optional CSV output, closed when the monitor stops
	Windows  chan<- Window // optional sink, never blocks the actor
}

// Monitor owns a small actor system whose single actor aggregates samples into
// windows. Report never blocks the caller's tick.
type Monitor struct {
	ctx    context.Context
	system actor.ActorSystem
	pid    *actor.PID
	logger log.Logger
	runID  string
}

// NewMonitor starts the actor system and spawns the monitor actor.
func NewMonitor(ctx context.Context, cfg MonitorConfig, logger log.Logger) (*Monitor, error) {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}

	system, err := actor.NewActorSystem("flock-"+string(cfg.Role),
		actor.WithLogger(logger),
		actor.WithActorInitMaxRetries(3))
	if err != nil {
		return nil, fmt.Errorf("creating actor system: %w", err)
	}
	if err := system.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting actor system: %w", err)
	}

	pid, err := system.Spawn(ctx, "monitor", newMonitorActor(cfg))
	if err != nil {
		_ = system.Stop(ctx)
		return nil, fmt.Errorf("spawning monitor: %w", err)
	}

	return &Monitor{ctx: ctx, system: system, pid: pid, logger: logger, runID: cfg.RunID}, nil
}

// Start is the process-level entry point: it opens the CSV output when dir is set
// and starts a monitor for role. When telemetry is disabled it returns a nil
// Monitor, which every method accepts.
func Start(ctx context.Context, role Role, enabled bool, dir string, interval time.Duration, logger log.Logger) (*Monitor, error) {
	if !enabled {
		return nil, nil
	}
	runID := uuid.NewString()
	out, err := NewOutput(dir, runID, role)
	if err != nil {
		return nil, err
	}
	m, err := NewMonitor(ctx, MonitorConfig{Role: role, RunID: runID, Interval: interval, Output: out}, logger)
	if err != nil {
		return nil, errors.Join(err, out.Close())
	}
	if out != nil {
		logger.Infof("telemetry windows go to %s", out.Path())
	}
	return m, nil
}

// RunID identifies this run in logs and output file names.
func (m *Monitor) RunID() string {
	if m == nil {
		return ""
	}
	return m.runID
}

// Report hands a sample to the monitor actor. A nil Monitor discards it.
func (m *Monitor) Report(s Sample) {
	if m == nil {
		return
	}
	msg, err := s.toStruct()
	if err != nil {
		m.logger.Warnf("telemetry: encoding sample: %v", err)
		return
	}
	if err := actor.Tell(m.ctx, m.pid, msg); err != nil {
		m.logger.Debugf("telemetry: dropping sample %d: %v", s.Tick, err)
	}
}

// Stop shuts the actor system down; the actor flushes its last window first.
func (m *Monitor) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.system.Stop(ctx)
}

type monitorActor struct {
	cfg    MonitorConfig
	acc    accumulator
	now    func() time.Time
	logger log.Logger
}

var _ actor.Actor = (*monitorActor)(nil)

func newMonitorActor(cfg MonitorConfig) *monitorActor {
	return &monitorActor{cfg: cfg, now: time.Now, logger: log.DiscardLogger}
}

func (a *monitorActor) PreStart(ctx *actor.Context) error {
	a.logger = ctx.ActorSystem().Logger()
	return nil
}

func (a *monitorActor) Receive(ctx *actor.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case *goaktpb.PostStart:
		ctx.Logger().Infof("telemetry monitor started: role=%s run=%s", a.cfg.Role, a.cfg.RunID)
	case *structpb.Struct:
		s, err := sampleFromStruct(msg)
		if err != nil {
			ctx.Unhandled()
			return
		}
		a.observe(s)
	default:
		ctx.Unhandled()
	}
}

func (a *monitorActor) PostStop(*actor.Context) error {
	if !a.acc.empty() {
		a.flush(a.now())
	}
	return a.cfg.Output.Close()
}

func (a *monitorActor) observe(s Sample) {
	now := a.now()
	a.acc.add(s, now)
	if a.acc.due(now, a.cfg.Interval) {
		a.flush(now)
	}
}

func (a *monitorActor) flush(now time.Time) {
	w := a.acc.close(a.cfg.RunID, a.cfg.Role, now)
	a.logger.Infof("[%s] tick %d: %d msgs %d bytes (%.0f B/s) dropped=%d tick=%.3fms/%.3fms n=%d speed=%.3f±%.3f polarization=%.2f",
		w.Role, w.LastTick, w.Messages, w.Bytes, w.BytesPerSec, w.Dropped,
		w.MeanTickMs, w.MaxTickMs, w.Count, w.MeanSpeed, w.SpeedStdDev, w.Polarization)
	if err := a.cfg.Output.Write(w); err != nil {
		a.logger.Errorf("telemetry: %v", err)
	}
	if a.cfg.Windows != nil {
		select {
		case a.cfg.Windows <- w:
		default:
		}
	}
}
