package enrich

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/docrag/internal/chunk"
)

// DefaultTimeout bounds one recognizer call.
const DefaultTimeout = 10 * time.Second

// FailureFunc is called once per chunk whose recognition failed.
type FailureFunc func(c *chunk.Chunk, err error)

// Enricher fills chunk entity lists from a Recognizer.
type Enricher struct {
	rec       Recognizer
	timeout   time.Duration
	onFailure FailureFunc
	logger    *slog.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithTimeout sets the per-chunk recognizer timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithFailureFunc registers the per-chunk failure callback.
func WithFailureFunc(fn FailureFunc) Option {
	return func(e *Enricher) {
		e.onFailure = fn
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) {
		e.logger = l
	}
}

// New creates an enricher. A nil recognizer behaves like NoOp.
func New(rec Recognizer, opts ...Option) *Enricher {
	if rec == nil {
		rec = NoOp{}
	}
	e := &Enricher{
		rec:     rec,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich recognizes entities in every chunk and returns how many chunks
// failed. A failed chunk keeps empty entity lists; enrichment never fails
// as a whole. Stops early only when ctx is done.
func (e *Enricher) Enrich(ctx context.Context, chunks []*chunk.Chunk) int {
	failed := 0
	for _, c := range chunks {
		if ctx.Err() != nil {
			return failed
		}
		if !e.enrichOne(ctx, c) {
			failed++
		}
	}
	return failed
}

func (e *Enricher) enrichOne(ctx context.Context, c *chunk.Chunk) bool {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	entities, err := e.rec.Recognize(callCtx, c.Text)
	cancel()

	c.Entities, c.Persons, c.Orgs = nil, nil, nil
	if err != nil {
		// A cancelled run is not a recognizer failure.
		if ctx.Err() != nil {
			return true
		}
		e.logger.Warn("enrich_chunk_failed",
			slog.String("chunk_id", c.ID),
			slog.String("error", err.Error()))
		if e.onFailure != nil {
			e.onFailure(c, err)
		}
		return false
	}

	seen := make(map[string]bool)
	for _, ent := range entities {
		name := strings.TrimSpace(ent.Name)
		if name == "" {
			continue
		}
		key := string(ent.Category) + "\x00" + name
		if seen[key] {
			continue
		}
		switch ent.Category {
		case CategoryPerson:
			c.Persons = append(c.Persons, name)
		case CategoryOrganization:
			c.Orgs = append(c.Orgs, name)
		default:
			continue
		}
		seen[key] = true
		c.Entities = append(c.Entities, name)
	}
	return true
}
