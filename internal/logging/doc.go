// Package logging configures structured slog output for docrag.
//
// Records are written as JSON to a size-rotated file, optionally to stderr,
// and into an in-memory Tail that serves the recent-log view of a running
// ingestion. The Viewer pretty-prints and follows log files for `docrag logs`.
package logging
