package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tochemey/goakt/v3/log"

	"github.com/lao-tseu-is-alive/go-flock-sync/internal/transport"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/spatial"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/syncproto"
)

// runConsumer runs c over socket in the background and returns a wait function.
func runConsumer(t *testing.T, ctx context.Context, c *Consumer, socket *transport.MockUDPSocket) func() error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, transport.NewReceiver(socket)) }()
	return func() error {
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not return")
			return nil
		}
	}
}

func encodeTicks(t *testing.T, table particle.Table, burst, ticks int) [][]byte {
	t.Helper()
	e := syncproto.NewEncoder(burst)
	var out [][]byte
	for range ticks {
		var err error
		out, err = e.AppendDatagrams(out, table)
		require.NoError(t, err)
	}
	return out
}

func TestConsumer_ReplicatesTable(t *testing.T) {
	p := NewProducer(testConfig(7, 2), log.DiscardLogger)
	source := p.Snapshot().Table

	socket := transport.NewMockUDPSocket(encodeTicks(t, source, 2, 4)...)
	c := NewConsumer(testConfig(0, 1), log.DiscardLogger)
	wait := runConsumer(t, context.Background(), c, socket)

	require.Eventually(t, func() bool { return socket.Remaining() == 0 && c.Snapshot().Messages == 11 },
		5*time.Second, time.Millisecond)
	c.Stop()
	require.NoError(t, wait())
	assert.True(t, socket.Closed(), "Stop closes the receiver")

	snap := c.Snapshot()
	if diff := cmp.Diff(source, snap.Table); diff != "" {
		t.Errorf("mirror differs (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(11*syncproto.RecordSize), snap.Bytes)
	for i := range snap.Table {
		assert.True(t, snap.Fresh(i, time.Now(), time.Minute), "slot %d", i)
	}
	assert.Equal(t, syncproto.Stats{Controls: 4, Resizes: 1, Applied: 7}, c.MirrorStats())
}

func TestConsumer_ProducerTicksEndToEnd(t *testing.T) {
	p := NewProducer(testConfig(30, 10), log.DiscardLogger)
	var datagrams [][]byte
	for range 3 {
		d, _, err := p.Tick()
		require.NoError(t, err)
		datagrams = append(datagrams, d...)
	}

	socket := transport.NewMockUDPSocket(datagrams...)
	c := NewConsumer(testConfig(0, 1), log.DiscardLogger)
	wait := runConsumer(t, context.Background(), c, socket)
	require.Eventually(t, func() bool { return c.Snapshot().Messages == uint64(len(datagrams)) },
		5*time.Second, time.Millisecond)
	c.Stop()
	require.NoError(t, wait())

	// slots 20..29 went out in the last tick, so they match the producer exactly
	got := c.Snapshot().Table
	want := p.Snapshot().Table
	require.Len(t, got, 30)
	assert.Equal(t, want[20:], got[20:])
}

func TestConsumer_MalformedIsFatal(t *testing.T) {
	socket := transport.NewMockUDPSocket(make([]byte, 16))
	c := NewConsumer(testConfig(0, 1), log.DiscardLogger)

	err := c.Run(context.Background(), transport.NewReceiver(socket))
	assert.ErrorIs(t, err, syncproto.ErrMessageSize)
	assert.True(t, c.Stopped())
}

func TestConsumer_OversizedIsMalformed(t *testing.T) {
	socket := transport.NewMockUDPSocket(make([]byte, syncproto.RecordSize+10))
	c := NewConsumer(testConfig(0, 1), log.DiscardLogger)

	err := c.Run(context.Background(), transport.NewReceiver(socket))
	assert.ErrorIs(t, err, syncproto.ErrMessageSize)
}

func TestConsumer_DropMalformed(t *testing.T) {
	ctrl, err := syncproto.NewControl(2).MarshalBinary()
	require.NoError(t, err)
	socket := transport.NewMockUDPSocket(make([]byte, 3), ctrl, make([]byte, 100))

	cfg := testConfig(0, 1)
	cfg.DropMalformed = true
	c := NewConsumer(cfg, log.DiscardLogger)
	wait := runConsumer(t, context.Background(), c, socket)

	require.Eventually(t, func() bool { return c.Snapshot().Malformed == 2 }, 5*time.Second, time.Millisecond)
	c.Stop()
	require.NoError(t, wait())

	snap := c.Snapshot()
	assert.Len(t, snap.Table, 2)
	assert.Equal(t, uint64(1), snap.Messages)
}

func TestConsumer_ContextCancelUnblocks(t *testing.T) {
	socket := transport.NewMockUDPSocket()
	c := NewConsumer(testConfig(0, 1), log.DiscardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	wait := runConsumer(t, ctx, c, socket)
	cancel()
	require.NoError(t, wait())
	assert.True(t, socket.Closed())
}

func TestConsumer_StopBeforeRun(t *testing.T) {
	socket := transport.NewMockUDPSocket()
	c := NewConsumer(testConfig(0, 1), log.DiscardLogger)
	c.Stop()
	require.NoError(t, c.Run(context.Background(), transport.NewReceiver(socket)))
	assert.True(t, socket.Closed())
}

func TestConsumer_SnapshotNeighbors(t *testing.T) {
	p := NewProducer(testConfig(100, 100), log.DiscardLogger)
	source := p.Snapshot().Table

	socket := transport.NewMockUDPSocket(encodeTicks(t, source, 100, 1)...)
	c := NewConsumer(testConfig(0, 1), log.DiscardLogger)
	wait := runConsumer(t, context.Background(), c, socket)
	require.Eventually(t, func() bool { return c.Snapshot().Messages == 101 }, 5*time.Second, time.Millisecond)
	c.Stop()
	require.NoError(t, wait())

	assert.Equal(t, 5, c.SelectNearest(source[5].Pos))
	snap := c.Snapshot()
	assert.True(t, snap.HasSelection())
	assert.NotEmpty(t, snap.Neighbors)
	assert.Equal(t, source, snap.Table, "computing neighbors never touches the mirror")

	c.Select(1000)
	assert.False(t, c.Snapshot().HasSelection())
	assert.Empty(t, c.Snapshot().Neighbors)
}

func TestConsumer_ReportsStatsAfterMalformed(t *testing.T) {
	p := NewProducer(testConfig(100, 100), log.DiscardLogger)
	datagrams := append([][]byte{make([]byte, 5)}, encodeTicks(t, p.Snapshot().Table, 100, 1)...)
	socket := transport.NewMockUDPSocket(datagrams...)

	cfg := testConfig(0, 1)
	cfg.DropMalformed = true
	rec := &sampleRecorder{}
	c := NewConsumer(cfg, log.DiscardLogger, WithConsumerReporter(rec))
	wait := runConsumer(t, context.Background(), c, socket)
	require.Eventually(t, func() bool { return rec.len() == 1 }, 5*time.Second, time.Millisecond)
	c.Stop()
	require.NoError(t, wait())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	s := rec.samples[0]
	assert.Equal(t, reportEvery, s.Messages)
	assert.Equal(t, 1, s.Dropped, "the malformed datagram")
	assert.Equal(t, 100, s.Stats.Count)
	assert.Positive(t, s.Stats.MeanSpeed)
}

func TestConsumer_SetModeChangesNeighborSearch(t *testing.T) {
	p := NewProducer(testConfig(100, 100), log.DiscardLogger)
	source := p.Snapshot().Table

	socket := transport.NewMockUDPSocket(encodeTicks(t, source, 100, 1)...)
	c := NewConsumer(testConfig(0, 1), log.DiscardLogger)
	wait := runConsumer(t, context.Background(), c, socket)
	require.Eventually(t, func() bool { return c.Snapshot().Messages == 101 }, 5*time.Second, time.Millisecond)
	c.Stop()
	require.NoError(t, wait())

	c.Select(5)
	indexed := c.Snapshot()
	assert.Equal(t, spatial.ModeIndex, indexed.Mode)

	c.SetMode(spatial.ModeBruteForce)
	brute := c.Snapshot()
	assert.Equal(t, spatial.ModeBruteForce, brute.Mode)
	assert.Len(t, brute.Neighbors, 99, "brute force pairs the selection with every other slot")
	assert.NotContains(t, brute.Neighbors, 5)
	assert.Subset(t, brute.Neighbors, indexed.Neighbors)
}

func TestNewConsumer_ModeFollowsConfig(t *testing.T) {
	cfg := testConfig(0, 1)
	cfg.UseIndex = false
	assert.Equal(t, spatial.ModeBruteForce, NewConsumer(cfg, log.DiscardLogger).Snapshot().Mode)
}
