// Package mcp exposes docrag over the Model Context Protocol: search,
// document listing, ingestion control and document folder changes.
package mcp

import (
	"context"
	"errors"
	"fmt"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// Custom MCP error codes for docrag.
const (
	// ErrCodeNotIndexed indicates the index is missing or unreadable.
	ErrCodeNotIndexed = -32001

	// ErrCodeCollaborator indicates an embedding, reranking or entity service failed.
	ErrCodeCollaborator = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a document or folder does not exist.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileTooLarge indicates an upload over the size limit.
	ErrCodeFileTooLarge = -32005

	// ErrCodeRetrieval indicates every enabled store failed during a search.
	ErrCodeRetrieval = -32010

	// ErrCodeAlreadyRunning indicates ingestion is already running.
	ErrCodeAlreadyRunning = -32021

	// ErrCodeNotRunning indicates no ingestion is running.
	ErrCodeNotRunning = -32022

	// ErrCodeLocked indicates a file mutation refused during ingestion,
	// the equivalent of HTTP 423.
	ErrCodeLocked = -32023

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	if de, ok := docerrors.As(err); ok {
		return mapDocError(de)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapDocError(de *docerrors.DocError) *MCPError {
	message := de.Message
	if de.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", de.Message, de.Suggestion)
	}

	switch de.Code {
	case docerrors.ErrCodeAlreadyRunning:
		return &MCPError{Code: ErrCodeAlreadyRunning, Message: message}
	case docerrors.ErrCodeNotRunning:
		return &MCPError{Code: ErrCodeNotRunning, Message: message}
	case docerrors.ErrCodeLocked:
		return &MCPError{Code: ErrCodeLocked, Message: message}
	case docerrors.ErrCodeRetrieval:
		return &MCPError{Code: ErrCodeRetrieval, Message: message}
	case docerrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case docerrors.ErrCodeFileTooLarge:
		return &MCPError{Code: ErrCodeFileTooLarge, Message: message}
	case docerrors.ErrCodeUnsupportedType:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case docerrors.ErrCodeCorruptIndex, docerrors.ErrCodeStoreUnavailable, docerrors.ErrCodeDimensionMismatch:
		return &MCPError{Code: ErrCodeNotIndexed, Message: message}
	}

	switch de.Category {
	case docerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case docerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeCollaborator, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
