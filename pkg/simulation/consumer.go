package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tochemey/goakt/v3/log"

	"github.com/lao-tseu-is-alive/go-flock-sync/internal/telemetry"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/spatial"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/syncproto"
)

// DatagramReceiver is the inbound side of the transport. Close must unblock a
// pending Receive.
type DatagramReceiver interface {
	Receive(buf []byte) (int, error)
	Close() error
}

// reportEvery is how many datagrams the consumer folds into one telemetry sample.
const reportEvery = 100

// Consumer owns a Mirror fed by a receive loop. It never simulates: neighbor lines
// for the selected slot are computed on the snapshot copy only.
type Consumer struct {
	mu        sync.Mutex
	mirror    *syncproto.Mirror
	cellSize  float64
	selected  int
	mode      spatial.Mode
	bytes     uint64
	messages  uint64
	malformed uint64

	dropMalformed bool
	logger        log.Logger
	reporter      Reporter
	stopped       atomic.Bool
	receiver      DatagramReceiver
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerReporter sends batched samples to r.
func WithConsumerReporter(r Reporter) ConsumerOption {
	return func(c *Consumer) {
		if r != nil {
			c.reporter = r
		}
	}
}

// NewConsumer builds a consumer with an empty mirror.
func NewConsumer(cfg *Config, logger log.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		mirror:        syncproto.NewMirror(),
		cellSize:      cfg.Flock.CellSize,
		selected:      -1,
		mode:          spatial.ModeIndex,
		dropMalformed: cfg.DropMalformed,
		logger:        logger,
		reporter:      nopReporter{},
	}
	if !cfg.UseIndex {
		c.mode = spatial.ModeBruteForce
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run receives and applies datagrams until ctx is done, Stop is called, or the
// transport fails. A datagram of the wrong size is fatal unless DropMalformed is
// set, in which case it is logged and counted.
func (c *Consumer) Run(ctx context.Context, receiver DatagramReceiver) error {
	c.mu.Lock()
	c.receiver = receiver
	c.mu.Unlock()
	if c.stopped.Load() {
		_ = receiver.Close()
		return nil
	}

	stop := context.AfterFunc(ctx, c.Stop)
	defer stop()

	// one spare byte so oversized datagrams are detected instead of truncated
	buf := make([]byte, syncproto.RecordSize+1)
	var batch telemetry.Sample
	for {
		n, err := receiver.Receive(buf)
		if c.stopped.Load() {
			return nil
		}
		if err != nil {
			c.stopped.Store(true)
			return fmt.Errorf("receive: %w", err)
		}

		msg, err := syncproto.Decode(buf[:n])
		if err != nil {
			if !c.dropMalformed || !errors.Is(err, syncproto.ErrMessageSize) {
				c.stopped.Store(true)
				return err
			}
			c.mu.Lock()
			c.malformed++
			c.mu.Unlock()
			batch.Dropped++
			c.logger.Warnf("dropping malformed datagram: %v", err)
			continue
		}

		c.mu.Lock()
		if !c.mirror.Apply(msg) {
			batch.Dropped++
		}
		c.bytes += uint64(n)
		c.messages++
		batch.Tick = c.messages
		batch.Bytes += n
		batch.Messages++
		full := batch.Messages == reportEvery
		if full {
			batch.Stats = telemetry.Measure(c.mirror.Table())
		}
		c.mu.Unlock()

		if full {
			c.reporter.Report(batch)
			batch = telemetry.Sample{}
		}
	}
}

// Stop sets the shutdown flag and closes the receiver so a blocked read returns.
func (c *Consumer) Stop() {
	if c.stopped.Swap(true) {
		return
	}
	c.mu.Lock()
	r := c.receiver
	c.mu.Unlock()
	if r != nil {
		if err := r.Close(); err != nil {
			c.logger.Warnf("closing receiver: %v", err)
		}
	}
}

// Stopped reports whether the consumer has shut down.
func (c *Consumer) Stopped() bool { return c.stopped.Load() }

// Select marks slot i for neighbor display; out of range clears the selection.
func (c *Consumer) Select(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= c.mirror.Len() {
		i = -1
	}
	c.selected = i
}

// SetMode chooses how neighbor candidates of the selected slot are enumerated.
func (c *Consumer) SetMode(mode spatial.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
}

// SelectNearest selects the mirrored slot closest to pos within SelectionRadius.
func (c *Consumer) SelectNearest(pos geometry.Vector2D) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := particle.Nearest(c.mirror.Table(), pos, SelectionRadius)
	if !ok {
		i = -1
	}
	c.selected = i
	return i
}

// Snapshot copies the mirror. Neighbor candidates of the selected slot are then
// enumerated on the copy, outside the lock.
func (c *Consumer) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		Table:     c.mirror.Table(),
		Updated:   c.mirror.Updated(),
		Selected:  c.selected,
		Mode:      c.mode,
		Tick:      c.messages,
		Bytes:     c.bytes,
		Messages:  c.messages,
		Malformed: c.malformed,
	}
	c.mu.Unlock()

	if s.HasSelection() {
		idx := spatial.NewIndex(len(s.Table), c.cellSize)
		collector := spatial.NewNeighborCollector(s.Selected)
		spatial.Run(s.Mode, idx, s.Table, collector)
		s.Neighbors = collector.Result()
	} else {
		s.Selected = -1
	}
	return s
}

// MirrorStats returns the mirror's message counters.
func (c *Consumer) MirrorStats() syncproto.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mirror.Stats()
}
