package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocError_Unwrap_PreservesCause(t *testing.T) {
	// Given: an original error
	cause := errors.New("disk full")

	// When: wrapping it in a DocError
	err := New(ErrCodeIndexFailed, "write failed", cause)

	// Then: the chain reaches the cause
	require.NotNil(t, err)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.ErrorIs(t, err, cause)
}

func TestDocError_Error_Format(t *testing.T) {
	tests := []struct {
		name     string
		err      *DocError
		expected string
	}{
		{
			name:     "no cause",
			err:      New(ErrCodeConfigNotFound, "config file not found", nil),
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "cause appended",
			err:      New(ErrCodeRetrieval, "retrieval failed", errors.New("boom")),
			expected: "[ERR_506_RETRIEVAL_FAILED] retrieval failed: boom",
		},
		{
			name:     "wrap does not repeat message",
			err:      Wrap(ErrCodeInternal, errors.New("boom")),
			expected: "[ERR_501_INTERNAL] boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDocError_Is_MatchesByCode(t *testing.T) {
	// Given: a locked error wrapped twice
	err := fmt.Errorf("upload: %w", Locked("upload"))

	// Then: the sentinel matches, other sentinels do not
	assert.ErrorIs(t, err, ErrLocked)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
	assert.NotErrorIs(t, err, ErrNotRunning)
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeStoreUnavailable, CategoryIO},
		{ErrCodeCollaborator, CategoryNetwork},
		{ErrCodeQueryEmpty, CategoryValidation},
		{ErrCodeBatchWrite, CategoryInternal},
		{ErrCodeLocked, CategoryLifecycle},
		{"bad", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, categoryFromCode(tt.code))
		})
	}
}

func TestKinds_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       *DocError
		sentinel  error
		retryable bool
		fatal     bool
	}{
		{"already running", AlreadyRunning("run"), ErrAlreadyRunning, false, false},
		{"not running", NotRunning(), ErrNotRunning, false, false},
		{"locked", Locked("delete"), ErrLocked, false, false},
		{"retrieval", Retrieval(errors.New("x")), ErrRetrieval, false, false},
		{"collaborator", Collaborator("reranker", errors.New("x")), ErrCollaborator, true, false},
		{"batch write", BatchWrite([]string{"a"}, errors.New("x")), ErrBatchWrite, true, false},
		{"store unavailable", StoreUnavailable("vector store", nil), ErrStoreUnavailable, false, true},
		{"dimension mismatch", DimensionMismatch(errors.New("8 != 4")), ErrDimensionMismatch, false, true},
		{"network timeout", New(ErrCodeNetworkTimeout, "slow", nil), ErrNetworkTimeout, true, false},
		{"network unavailable", New(ErrCodeNetworkUnavailable, "down", nil), ErrNetworkUnavailable, true, false},
		{"embedding failed", New(ErrCodeEmbeddingFailed, "bad", nil), ErrEmbeddingFailed, false, false},
		{"file corrupt", New(ErrCodeFileCorrupt, "bad zip", nil), ErrFileCorrupt, false, false},
		{"file permission", New(ErrCodeFilePermission, "denied", nil), ErrFilePermission, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestBatchWrite_AttributesChunkIDs(t *testing.T) {
	// Given: a batch write failure for three chunks
	ids := []string{"a.pdf_1_0", "a.pdf_1_1", "a.pdf_2_0"}
	err := fmt.Errorf("index: %w", BatchWrite(ids, errors.New("store down")))

	// Then: the IDs are recoverable from the chain
	assert.Equal(t, ids, ChunkIDs(err))
	assert.Nil(t, ChunkIDs(errors.New("plain")))

	de, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "3", de.Details["chunk_count"])
}

func TestAlreadyRunning_CarriesHolder(t *testing.T) {
	err := AlreadyRunning("process")

	assert.Equal(t, "process", err.Details["holder"])
	assert.NotEmpty(t, err.Suggestion)
	assert.Equal(t, CategoryLifecycle, GetCategory(err))
	assert.Equal(t, ErrCodeAlreadyRunning, GetCode(err))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
	assert.Empty(t, GetCode(errors.New("plain")))
}
