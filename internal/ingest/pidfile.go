package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFileName records the process running a CLI ingestion, so `docrag stop`
// can interrupt it.
const PIDFileName = "ingest.pid"

// ErrNoPIDFile is returned when no ingesting process registered itself.
var ErrNoPIDFile = errors.New("no ingest.pid file")

// PIDFile is <dataDir>/ingest.pid.
type PIDFile struct {
	path string
}

// NewPIDFile returns the pid file of dataDir.
func NewPIDFile(dataDir string) *PIDFile {
	return &PIDFile{path: filepath.Join(dataDir, PIDFileName)}
}

// Path returns the file location.
func (p *PIDFile) Path() string {
	return p.path
}

// Write records the current process.
func (p *PIDFile) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Read returns the recorded pid.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNoPIDFile
	}
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s: %q", p.path, data)
	}
	return pid, nil
}

// Remove deletes the file; a missing file is fine.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// Interrupt asks the recorded process to stop its run, as Ctrl-C would.
func (p *PIDFile) Interrupt() (int, error) {
	pid, err := p.Read()
	if err != nil {
		return 0, err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return pid, fmt.Errorf("signal process %d: %w", pid, err)
	}
	return pid, nil
}

// Alive reports whether the recorded process still exists.
func (p *PIDFile) Alive() bool {
	pid, err := p.Read()
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes existence.
	return proc.Signal(syscall.Signal(0)) == nil
}
