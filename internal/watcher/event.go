package watcher

import (
	"time"
)

// Operation is the kind of change observed for a path.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change under the watched root.
type FileEvent struct {
	// Path is slash-separated and relative to the root.
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long a path must stay quiet before its event is emitted.
	// Default: 2s
	Debounce time.Duration

	// EventBufferSize is the capacity of the batch channel.
	// Default: 64
	EventBufferSize int

	// Allowed filters file events by name. Nil passes every file.
	Allowed func(name string) bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:        2 * time.Second,
		EventBufferSize: 64,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
