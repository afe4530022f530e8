// Package simulation hosts the two process cores: the Producer that simulates the
// flock and streams patches, and the Consumer that rebuilds a mirror from them.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tochemey/goakt/v3/log"

	"github.com/lao-tseu-is-alive/go-flock-sync/internal/telemetry"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/spatial"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/syncproto"
)

// ErrStopped is returned by controls used after Stop.
var ErrStopped = errors.New("simulation stopped")

// logEvery is how many ticks pass between two traffic log lines.
const logEvery = 100

// SelectionRadius is how close a click must be to a particle to select it.
const SelectionRadius = 0.5

// DatagramSender is the outbound side of the transport.
type DatagramSender interface {
	Send(b []byte) error
}

// Reporter receives one telemetry sample per tick or batch.
type Reporter interface {
	Report(telemetry.Sample)
}

type nopReporter struct{}

func (nopReporter) Report(telemetry.Sample) {}

// Producer owns the authoritative table. A single mutex covers the whole tick
// (index rebuild, flocking pass, neighbor collection and encoding); renderers take
// it briefly through Snapshot.
type Producer struct {
	mu         sync.Mutex
	params     flock.Params
	table      particle.Table
	index      *spatial.Index
	encoder    *syncproto.Encoder
	rng        *rand.Rand
	mode       spatial.Mode
	randomness float64
	selected   int
	neighbors  []int
	tick       uint64
	bytes      uint64
	messages   uint64

	interval time.Duration
	settle   time.Duration
	logger   log.Logger
	reporter Reporter
	stopped  atomic.Bool
}

// ProducerOption customises a Producer.
type ProducerOption func(*Producer)

// WithReporter sends per-tick samples to r.
func WithReporter(r Reporter) ProducerOption {
	return func(p *Producer) {
		if r != nil {
			p.reporter = r
		}
	}
}

// WithRand replaces the random source used for jitter and new particles.
func WithRand(rng *rand.Rand) ProducerOption {
	return func(p *Producer) { p.rng = rng }
}

// NewProducer builds a producer with cfg.NumObjects random particles.
func NewProducer(cfg *Config, logger log.Logger, opts ...ProducerOption) *Producer {
	params := cfg.FlockParams()
	p := &Producer{
		params:     params,
		encoder:    syncproto.NewEncoder(cfg.Burst),
		randomness: params.Randomness,
		selected:   -1,
		interval:   cfg.Interval(),
		settle:     cfg.SettleDelay(),
		logger:     logger,
		reporter:   nopReporter{},
	}
	if !cfg.UseIndex {
		p.mode = spatial.ModeBruteForce
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	p.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, opt := range opts {
		opt(p)
	}
	p.table = particle.Random(p.rng, cfg.NumObjects, params.SpaceWidth)
	p.index = spatial.NewIndex(len(p.table), params.CellSize)
	return p
}

// Run waits for the settle delay, then ticks every interval until ctx is done or
// Stop is called. A send error ends the loop and is returned.
func (p *Producer) Run(ctx context.Context, sender DatagramSender) error {
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(p.settle):
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if p.stopped.Load() {
			return nil
		}

		start := time.Now()
		datagrams, sample, err := p.Tick()
		if err != nil {
			return err
		}
		sample.TickDuration = time.Since(start)

		amt := 0
		for _, d := range datagrams {
			if err := sender.Send(d); err != nil {
				p.stopped.Store(true)
				return fmt.Errorf("tick %d: %w", sample.Tick, err)
			}
			amt += len(d)
		}
		p.mu.Lock()
		p.bytes += uint64(amt)
		p.messages += uint64(len(datagrams))
		p.mu.Unlock()

		if sample.Tick%logEvery == 0 {
			p.logger.Infof("[%d] Sent %d bytes", sample.Tick, amt)
		}
		p.reporter.Report(sample)

		if p.stopped.Load() {
			return nil
		}
	}
}

// Tick advances the simulation by one step and encodes the resulting burst.
// It is exported so tools and tests can drive the producer without a clock.
func (p *Producer) Tick() ([][]byte, telemetry.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	engine := flock.NewEngine(p.params, p.rng, p.randomness)
	if p.mode == spatial.ModeIndex {
		p.index.Update(p.table)
		p.index.Scan(p.table, engine)
		collector := spatial.NewNeighborCollector(p.selected)
		p.index.Scan(p.table, collector)
		p.neighbors = collector.Result()
	} else {
		spatial.BruteForce(p.table, engine)
		p.neighbors = nil
	}

	datagrams, err := p.encoder.AppendDatagrams(nil, p.table)
	if err != nil {
		return nil, telemetry.Sample{}, fmt.Errorf("encoding tick %d: %w", p.tick, err)
	}

	sample := telemetry.Sample{
		Tick:       p.tick,
		Messages:   len(datagrams),
		Bytes:      len(datagrams) * syncproto.RecordSize,
		Candidates: engine.Visited(),
		Stats:      telemetry.Measure(p.table),
	}
	p.tick++
	return datagrams, sample, nil
}

// Stop makes Run return after the current tick.
func (p *Producer) Stop() { p.stopped.Store(true) }

// Stopped reports whether Stop was called or a send failed.
func (p *Producer) Stopped() bool { return p.stopped.Load() }

// Snapshot copies the table and the renderer-facing state.
func (p *Producer) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Table:      p.table.Clone(),
		Neighbors:  append([]int(nil), p.neighbors...),
		Selected:   p.selected,
		Mode:       p.mode,
		Randomness: p.randomness,
		Tick:       p.tick,
		Bytes:      p.bytes,
		Messages:   p.messages,
	}
}

// SetMode switches between the spatial index and brute force.
func (p *Producer) SetMode(mode spatial.Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = mode
}

// SetRandomness sets the jitter gain used from the next tick on.
func (p *Producer) SetRandomness(r float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.randomness = max(r, 0)
}

// Select marks slot i for neighbor collection; a negative or out of range slot
// clears the selection.
func (p *Producer) Select(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.table) {
		i = -1
	}
	p.selected = i
	p.neighbors = nil
}

// SelectNearest selects the slot closest to pos within SelectionRadius, or clears
// the selection when there is none. It returns the selected slot.
func (p *Producer) SelectNearest(pos geometry.Vector2D) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := particle.Nearest(p.table, pos, SelectionRadius)
	if !ok {
		i = -1
	}
	p.selected = i
	p.neighbors = nil
	return i
}

// Resize grows or truncates the table to n slots. Surviving slots keep their
// identity; the next control message announces the new length.
func (p *Producer) Resize(n int) error {
	if p.stopped.Load() {
		return ErrStopped
	}
	if n < 0 || n > syncproto.MaxCount {
		return fmt.Errorf("resize: count %d out of range [0, %d]", n, syncproto.MaxCount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table = p.table.Grow(p.rng, n, p.params.SpaceWidth)
	p.index.Resize(n)
	if p.selected >= n {
		p.selected = -1
		p.neighbors = nil
	}
	p.logger.Infof("table resized to %d particles", n)
	return nil
}

// Params returns the flocking parameters.
func (p *Producer) Params() flock.Params { return p.params }
