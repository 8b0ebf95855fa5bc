package errors

import (
	"strconv"
	"strings"
)

// Sentinels for errors.Is. Matching is by code, so any DocError built
// with the same code matches regardless of message or details.
var (
	ErrAlreadyRunning   = &DocError{Code: ErrCodeAlreadyRunning}
	ErrNotRunning       = &DocError{Code: ErrCodeNotRunning}
	ErrLocked           = &DocError{Code: ErrCodeLocked}
	ErrRetrieval        = &DocError{Code: ErrCodeRetrieval}
	ErrCollaborator     = &DocError{Code: ErrCodeCollaborator}
	ErrBatchWrite       = &DocError{Code: ErrCodeBatchWrite}
	ErrStoreUnavailable = &DocError{Code: ErrCodeStoreUnavailable}
	ErrQueryEmpty       = &DocError{Code: ErrCodeQueryEmpty}

	ErrDimensionMismatch  = &DocError{Code: ErrCodeDimensionMismatch}
	ErrEmbeddingFailed    = &DocError{Code: ErrCodeEmbeddingFailed}
	ErrNetworkTimeout     = &DocError{Code: ErrCodeNetworkTimeout}
	ErrNetworkUnavailable = &DocError{Code: ErrCodeNetworkUnavailable}
	ErrFileCorrupt        = &DocError{Code: ErrCodeFileCorrupt}
	ErrFilePermission     = &DocError{Code: ErrCodeFilePermission}
)

// AlreadyRunning reports a Start while a run is active.
// holder is "run" for this process or "process" for another process.
func AlreadyRunning(holder string) *DocError {
	return New(ErrCodeAlreadyRunning, "ingestion is already running", nil).
		WithDetail("holder", holder).
		WithSuggestion("Wait for the current run to finish or stop it with 'docrag stop'")
}

// NotRunning reports a Stop with no active run.
func NotRunning() *DocError {
	return New(ErrCodeNotRunning, "no ingestion is running", nil)
}

// Locked reports a file mutation refused while ingestion holds the file lock.
func Locked(op string) *DocError {
	return New(ErrCodeLocked, "documents are locked while ingestion is running", nil).
		WithDetail("operation", op).
		WithSuggestion("Retry after the ingestion run completes")
}

// Retrieval reports that every enabled store failed during a search.
func Retrieval(cause error) *DocError {
	return New(ErrCodeRetrieval, "retrieval failed", cause)
}

// Collaborator reports a failure of an external model or service.
func Collaborator(name string, cause error) *DocError {
	return New(ErrCodeCollaborator, name+" call failed", cause).
		WithDetail("collaborator", name)
}

// BatchWrite reports a batch that could not be persisted.
// The batch's chunk IDs are attributed in the "chunk_ids" detail.
func BatchWrite(ids []string, cause error) *DocError {
	return New(ErrCodeBatchWrite, "batch write failed", cause).
		WithDetail("chunk_ids", strings.Join(ids, ",")).
		WithDetail("chunk_count", strconv.Itoa(len(ids)))
}

// StoreUnavailable reports an unreachable or closed store. Fatal for a run.
func StoreUnavailable(store string, cause error) *DocError {
	return New(ErrCodeStoreUnavailable, store+" is unavailable", cause).
		WithDetail("store", store)
}

// DimensionMismatch reports embeddings whose length differs from the
// vector index's. Fatal for a run.
func DimensionMismatch(cause error) *DocError {
	return New(ErrCodeDimensionMismatch, "embedding dimensions do not match the vector index", cause).
		WithSuggestion("Delete the data directory and run 'docrag ingest' after changing the embedding model")
}

// QueryEmpty reports a blank search query.
func QueryEmpty() *DocError {
	return New(ErrCodeQueryEmpty, "query is required", nil)
}

// ChunkIDs returns the chunk IDs attributed to a BatchWrite error.
func ChunkIDs(err error) []string {
	de, ok := As(err)
	if !ok || de.Code != ErrCodeBatchWrite {
		return nil
	}
	raw := de.Details["chunk_ids"]
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
