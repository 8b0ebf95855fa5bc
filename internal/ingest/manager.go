package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/logging"
)

// Runner performs one full ingestion. index.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, obs index.Observer) (*index.RunResult, error)
}

// Config configures a Manager.
type Config struct {
	// DataDir holds the cross-process ingest.lock.
	DataDir string

	// Tail serves GetRecent. Optional.
	Tail *logging.Tail

	// PersistStatus writes ingest.status.json to DataDir when a run starts
	// and ends, so other processes can report on it.
	PersistStatus bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Manager owns the ingestion state machine. At most one run is active;
// state, the file lock and the current run share one mutex so a file
// mutation can never interleave with Start.
type Manager struct {
	runner Runner
	lock   *FileLock
	tail   *logging.Tail
	logger *slog.Logger
	now    func() time.Time

	dataDir string
	persist bool

	mu    sync.Mutex
	state State
	run   *run

	// snapMu serializes snapshot writers; readers load snap lock-free.
	snapMu sync.Mutex
	snap   atomic.Pointer[Snapshot]
}

// run is one ingestion. It receives pipeline progress as index.Observer.
type run struct {
	m      *Manager
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by Manager.mu
	stopRequested bool
}

// NewManager creates an idle manager.
func NewManager(runner Runner, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{
		runner: runner,
		lock:   NewFileLock(cfg.DataDir),
		tail:   cfg.Tail,
		logger: cfg.Logger,
		now:    cfg.Now,
		state:  StateIdle,

		dataDir: cfg.DataDir,
		persist: cfg.PersistStatus,
	}
	m.snap.Store(&Snapshot{State: StateIdle})
	return m
}

// Status returns the latest snapshot without blocking.
func (m *Manager) Status() Snapshot {
	return *m.snap.Load()
}

// IsRunning reports whether a run is active.
func (m *Manager) IsRunning() bool {
	return m.Status().State == StateRunning
}

// Start launches a run in the background and returns its first snapshot.
// ctx values are kept but its cancellation does not stop the run; use Stop.
func (m *Manager) Start(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRunning {
		return m.Status(), docerrors.AlreadyRunning("run")
	}

	acquired, err := m.lock.TryLock()
	if err != nil {
		return m.Status(), err
	}
	if !acquired {
		return m.Status(), docerrors.AlreadyRunning("process")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		m:      m,
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.run = r
	m.state = StateRunning
	snap := m.publish(func(s *Snapshot) {
		*s = Snapshot{
			State:     StateRunning,
			RunID:     r.id,
			FileLock:  true,
			StartedAt: m.now(),
		}
	})

	m.persistStatus(snap)
	m.logger.Info("ingest_started", slog.String("run_id", r.id))
	go m.execute(runCtx, r)
	return snap, nil
}

func (m *Manager) execute(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()

	res, err := m.runner.Run(ctx, r)

	m.mu.Lock()
	defer m.mu.Unlock()

	// A run that got through every document completes even when Stop
	// raced with its last batch.
	final := StateCompleted
	switch {
	case err == nil:
	case r.stopRequested && errors.Is(err, context.Canceled):
		final = StateStopped
	default:
		final = StateError
	}
	m.state = final

	snap := m.publish(func(s *Snapshot) {
		s.State = final
		s.FileLock = false
		s.EndedAt = m.now()
		if res != nil {
			s.Total = res.Total
			s.Processed = res.Processed
			s.Failed = res.Failed
			s.Removed = res.Removed
			s.Chunks = res.Chunks
			s.FailedChunks = res.FailedChunks
			s.FailedBatches = res.FailedBatches
		}
		if final == StateError {
			s.LastError = err.Error()
		}
	})
	m.persistStatus(snap)
	if unlockErr := m.lock.Unlock(); unlockErr != nil {
		m.logger.Warn("ingest_unlock_failed", slog.String("error", unlockErr.Error()))
	}

	attrs := []any{
		slog.String("run_id", r.id),
		slog.String("state", string(final)),
		slog.Int("documents", snap.Processed),
		slog.Int("failed_documents", snap.Failed),
		slog.Int("chunks", snap.Chunks),
		slog.Int("failed_chunks", snap.FailedChunks),
		slog.Int("failed_batches", snap.FailedBatches),
		slog.Duration("duration", snap.Elapsed(m.now())),
	}
	switch final {
	case StateError:
		m.logger.Error("ingest_failed", append(attrs, slog.String("error", err.Error()))...)
	case StateStopped:
		m.logger.Warn("ingest_stopped", attrs...)
	default:
		m.logger.Info("ingest_completed", attrs...)
	}
}

// Stop asks the active run to stop and waits until it has. The pipeline
// sees the request only between batches and documents, so the batch in
// flight is written completely. The file lock is released before Stop
// returns.
func (m *Manager) Stop(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return m.Status(), docerrors.NotRunning()
	}
	r := m.run
	r.stopRequested = true
	m.mu.Unlock()

	m.logger.Info("ingest_stop_requested", slog.String("run_id", r.id))
	r.cancel()

	select {
	case <-r.done:
		return m.Status(), nil
	case <-ctx.Done():
		return m.Status(), ctx.Err()
	}
}

// Wait blocks until the current run, if any, has finished.
func (m *Manager) Wait(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	r := m.run
	m.mu.Unlock()

	if r == nil {
		return m.Status(), nil
	}
	select {
	case <-r.done:
		return m.Status(), nil
	case <-ctx.Done():
		return m.Status(), ctx.Err()
	}
}

// Guard runs a file mutation unless ingestion holds the file lock, in this
// process or another. op names the mutation in the Locked error.
func (m *Manager) Guard(op string, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRunning {
		return docerrors.Locked(op)
	}

	acquired, err := m.lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return docerrors.Locked(op).WithDetail("holder", "process")
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.logger.Warn("ingest_unlock_failed", slog.String("error", err.Error()))
		}
	}()

	return fn()
}

// GetRecent returns up to n of the latest log lines, oldest first.
func (m *Manager) GetRecent(n int) []string {
	if m.tail == nil {
		return []string{}
	}
	return m.tail.Recent(n)
}

// Close stops an active run.
func (m *Manager) Close(ctx context.Context) error {
	if !m.IsRunning() {
		return nil
	}
	if _, err := m.Stop(ctx); err != nil && !errors.Is(err, docerrors.ErrNotRunning) {
		return fmt.Errorf("stop ingestion: %w", err)
	}
	return nil
}

// persistStatus is best-effort; a failed write only costs other processes
// their view of the run.
func (m *Manager) persistStatus(snap Snapshot) {
	if !m.persist {
		return
	}
	if err := WriteStatusFile(m.dataDir, snap); err != nil {
		m.logger.Warn("ingest_status_write_failed", slog.String("error", err.Error()))
	}
}

// publish applies fn to a copy of the current snapshot and stores it.
func (m *Manager) publish(fn func(*Snapshot)) Snapshot {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()

	next := *m.snap.Load()
	fn(&next)
	m.snap.Store(&next)
	return next
}

// OnDiscovered implements index.Observer.
func (r *run) OnDiscovered(total int) {
	r.m.publish(func(s *Snapshot) {
		if s.RunID == r.id {
			s.Total = total
		}
	})
}

// OnDocument implements index.Observer.
func (r *run) OnDocument(res *index.DocumentResult) {
	r.m.publish(func(s *Snapshot) {
		if s.RunID != r.id {
			return
		}
		s.Processed++
		s.LastFile = res.Filename
		s.Chunks += res.Written
		s.FailedChunks += res.FailedChunks
		s.FailedBatches += res.FailedBatches
		if res.Failed() {
			s.Failed++
		}
	})
}
