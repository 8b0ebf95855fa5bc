package ui

import (
	"sync"
	"time"

	"github.com/Aman-CERP/docrag/internal/ingest"
)

// speedWindow is the minimum interval between throughput samples.
const speedWindow = 500 * time.Millisecond

// etaSmoothingFactor weights a new ETA estimate against the previous one.
const etaSmoothingFactor = 0.3

// ProgressTracker turns a stream of snapshots into display metrics:
// document throughput, a throughput sparkline and a smoothed ETA.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu   sync.RWMutex
	now  func() time.Time
	snap ingest.Snapshot

	stage      Stage
	stageStart time.Time
	lastETA    time.Duration

	lastProcessed int
	lastSample    time.Time
	currentSpeed  float64
	avgSpeed      float64
	peakSpeed     float64
	speedSamples  int
	sparkline     *Sparkline
}

// SpeedStats holds documents per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a point-in-time view of the tracker.
type ProgressStats struct {
	Stage        Stage
	Processed    int
	Total        int
	Progress     float64 // 0.0-1.0
	ETA          time.Duration
	LastFile     string
	Chunks       int
	Failed       int
	FailedChunks int
	Speed        SpeedStats
}

// NewProgressTracker creates a tracker in the discovering stage.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{
		now:        now,
		stage:      StageDiscovering,
		stageStart: t,
		lastSample: t,
		sparkline:  NewSparkline(60),
	}
}

// Observe records a snapshot.
func (p *ProgressTracker) Observe(snap ingest.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if stage := StageOf(snap); stage != p.stage {
		p.stage = stage
		p.stageStart = now
		p.lastETA = 0
		p.lastProcessed = snap.Processed
		p.lastSample = now
	}
	p.snap = snap

	elapsed := now.Sub(p.lastSample)
	if elapsed < speedWindow {
		return
	}
	if delta := snap.Processed - p.lastProcessed; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.currentSpeed = speed
		p.speedSamples++
		if p.speedSamples == 1 {
			p.avgSpeed = speed
		} else {
			p.avgSpeed = 0.2*speed + 0.8*p.avgSpeed
		}
		p.peakSpeed = max(p.peakSpeed, speed)
		p.sparkline.Add(speed)
	} else {
		p.currentSpeed = 0
		p.sparkline.Add(0)
	}
	p.lastProcessed = snap.Processed
	p.lastSample = now
}

// Stats returns the current metrics. It takes the write lock because the
// ETA estimate is smoothed against its previous value.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:        p.stage,
		Processed:    p.snap.Processed,
		Total:        p.snap.Total,
		Progress:     p.progress(),
		ETA:          p.calculateETA(),
		LastFile:     p.snap.LastFile,
		Chunks:       p.snap.Chunks,
		Failed:       p.snap.Failed,
		FailedChunks: p.snap.FailedChunks,
		Speed:        SpeedStats{Current: p.currentSpeed, Avg: p.avgSpeed, Peak: p.peakSpeed},
	}
}

// Snapshot returns the last observed snapshot.
func (p *ProgressTracker) Snapshot() ingest.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// RenderSparkline returns the throughput sparkline.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sparkline.Render(width)
}

// must be called with lock held
func (p *ProgressTracker) progress() float64 {
	if p.snap.Total == 0 {
		return 0
	}
	return min(float64(p.snap.Processed)/float64(p.snap.Total), 1.0)
}

// must be called with lock held
func (p *ProgressTracker) calculateETA() time.Duration {
	progress := p.progress()
	if progress <= 0 || progress >= 1.0 {
		return 0
	}

	elapsed := p.now().Sub(p.stageStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}

	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	smoothed := time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	p.lastETA = smoothed
	return smoothed
}
