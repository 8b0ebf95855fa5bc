package logging

import (
	"bytes"
	"sync"
)

// DefaultTailLines is the default capacity of a Tail.
const DefaultTailLines = 1000

// Tail is a fixed-size ring of the most recent log lines.
// It implements io.Writer so it can sit behind an slog handler.
// Reads never block the writer for longer than a copy.
type Tail struct {
	mu      sync.Mutex
	lines   []string
	next    int
	full    bool
	partial []byte
}

// NewTail creates a Tail holding up to capacity lines.
func NewTail(capacity int) *Tail {
	if capacity <= 0 {
		capacity = DefaultTailLines
	}
	return &Tail{lines: make([]string, capacity)}
}

// Write appends newline-terminated lines. A trailing fragment is kept
// until its newline arrives.
func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := p
	if len(t.partial) > 0 {
		data = append(t.partial, p...)
		t.partial = nil
	}

	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if i > 0 {
			t.push(string(data[:i]))
		}
		data = data[i+1:]
	}
	if len(data) > 0 {
		t.partial = append([]byte(nil), data...)
	}

	return len(p), nil
}

// must hold mu
func (t *Tail) push(line string) {
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

// Len returns the number of lines held.
func (t *Tail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return len(t.lines)
	}
	return t.next
}

// Recent returns up to n of the most recent lines, oldest first.
// n <= 0 returns every held line.
func (t *Tail) Recent(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := t.next
	if t.full {
		size = len(t.lines)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]string, n)
	start := t.next - n
	if start < 0 {
		start += len(t.lines)
	}
	for i := 0; i < n; i++ {
		out[i] = t.lines[(start+i)%len(t.lines)]
	}
	return out
}

// Entries parses the n most recent lines.
func (t *Tail) Entries(n int) []LogEntry {
	lines := t.Recent(n)
	entries := make([]LogEntry, len(lines))
	for i, line := range lines {
		entries[i] = ParseLine(line)
	}
	return entries
}
