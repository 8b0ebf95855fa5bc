package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/docrag/internal/ingest"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func running(total, processed int) ingest.Snapshot {
	return ingest.Snapshot{State: ingest.StateRunning, Total: total, Processed: processed}
}

func TestProgressTracker_SpeedAndETA(t *testing.T) {
	// Given: a tracker that sees a counted run
	clock := newFakeClock()
	p := newProgressTracker(clock.now)
	p.Observe(running(10, 0))

	// When: five documents finish in one second
	clock.advance(time.Second)
	p.Observe(running(10, 5))
	stats := p.Stats()

	// Then: throughput and ETA follow
	assert.Equal(t, StageIngesting, stats.Stage)
	assert.Equal(t, 5, stats.Processed)
	assert.InDelta(t, 0.5, stats.Progress, 1e-9)
	assert.InDelta(t, 5.0, stats.Speed.Current, 1e-9)
	assert.InDelta(t, 5.0, stats.Speed.Avg, 1e-9)
	assert.InDelta(t, 5.0, stats.Speed.Peak, 1e-9)
	assert.Equal(t, time.Second, stats.ETA)
}

func TestProgressTracker_SamplesAreThrottled(t *testing.T) {
	clock := newFakeClock()
	p := newProgressTracker(clock.now)
	p.Observe(running(10, 0))

	// Within the sampling window no speed is computed.
	clock.advance(100 * time.Millisecond)
	p.Observe(running(10, 3))

	stats := p.Stats()
	assert.Equal(t, 3, stats.Processed)
	assert.Zero(t, stats.Speed.Current)
}

func TestProgressTracker_ETASmoothing(t *testing.T) {
	clock := newFakeClock()
	p := newProgressTracker(clock.now)
	p.Observe(running(10, 0))

	clock.advance(time.Second)
	p.Observe(running(10, 5))
	first := p.Stats().ETA

	// Progress stalls: the raw estimate jumps, the smoothed one moves less.
	clock.advance(3 * time.Second)
	p.Observe(running(10, 5))
	second := p.Stats().ETA

	raw := 4 * time.Second
	assert.Greater(t, second, first)
	assert.Less(t, second, raw)
}

func TestProgressTracker_Bounds(t *testing.T) {
	p := NewProgressTracker()

	assert.Zero(t, p.Stats().Progress)
	assert.Equal(t, StageDiscovering, p.Stats().Stage)

	p.Observe(ingest.Snapshot{State: ingest.StateCompleted, Total: 2, Processed: 2, LastFile: "b.pdf"})
	stats := p.Stats()
	assert.Equal(t, StageComplete, stats.Stage)
	assert.InDelta(t, 1.0, stats.Progress, 1e-9)
	assert.Zero(t, stats.ETA)
	assert.Equal(t, "b.pdf", p.Snapshot().LastFile)
}

func TestSparkline(t *testing.T) {
	// Given: a sparkline holding four samples
	s := NewSparkline(4)
	assert.Equal(t, "    ", s.Render(0))

	// When: adding three samples
	s.Add(1)
	s.Add(2)
	s.Add(4)

	// Then: bars scale to the peak, padded on the left
	assert.Equal(t, " ▂▄█", s.Render(4))

	// When: overflowing the capacity
	s.Add(8)
	s.Add(0)

	// Then: the oldest sample is dropped
	assert.Equal(t, 4, s.Count())
	assert.InDelta(t, 8.0, s.Max(), 1e-9)
	assert.Equal(t, "█▁", s.Render(2))

	s.Clear()
	assert.Zero(t, s.Count())
}
