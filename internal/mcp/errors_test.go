package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already running", docerrors.AlreadyRunning("run"), ErrCodeAlreadyRunning},
		{"not running", docerrors.NotRunning(), ErrCodeNotRunning},
		{"locked", docerrors.Locked("upload"), ErrCodeLocked},
		{"wrapped locked", fmt.Errorf("upload: %w", docerrors.Locked("upload")), ErrCodeLocked},
		{"retrieval", docerrors.Retrieval(errors.New("x")), ErrCodeRetrieval},
		{"query empty", docerrors.QueryEmpty(), ErrCodeInvalidParams},
		{"invalid path", docerrors.New(docerrors.ErrCodeInvalidPath, "bad", nil), ErrCodeInvalidParams},
		{"unsupported type", docerrors.New(docerrors.ErrCodeUnsupportedType, "bad", nil), ErrCodeInvalidParams},
		{"too large", docerrors.New(docerrors.ErrCodeFileTooLarge, "big", nil), ErrCodeFileTooLarge},
		{"not found", docerrors.New(docerrors.ErrCodeFileNotFound, "gone", nil), ErrCodeFileNotFound},
		{"store", docerrors.StoreUnavailable("vector", errors.New("closed")), ErrCodeNotIndexed},
		{"dimension mismatch", docerrors.DimensionMismatch(errors.New("8 != 4")), ErrCodeNotIndexed},
		{"collaborator", docerrors.Collaborator("reranker", errors.New("x")), ErrCodeCollaborator},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"plain", errors.New("boom"), ErrCodeInternalError},
		{"mcp passthrough", NewInvalidParamsError("x"), ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapError(tt.err).Code)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	got := MapError(docerrors.Locked("upload"))

	assert.Contains(t, got.Message, "locked")
	assert.Contains(t, got.Message, "Retry after")
	assert.Contains(t, got.Error(), "-32023")
}
