package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced across the engine boundary.
var (
	// ErrChunkNotFound indicates a lookup for an unknown chunk id.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrStaleResult indicates a job result was superseded by a newer
	// edit. Stale results are discarded silently, never stored.
	ErrStaleResult = errors.New("stale job result")

	// ErrAggregateNotReady indicates aggregation was requested for a
	// chunk whose children are not all fresh.
	ErrAggregateNotReady = errors.New("children not fresh")

	// ErrEngineClosed indicates an operation on a destroyed engine.
	ErrEngineClosed = errors.New("engine destroyed")

	// ErrChapterNotRegistered indicates an edit or query against a
	// chapter id that was never registered.
	ErrChapterNotRegistered = errors.New("chapter not registered")
)

// ParseError wraps a structural-parser failure for one leaf chunk.
type ParseError struct {
	ChunkID string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for chunk %s: %v", e.ChunkID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WorkerError wraps a job failure external to parsing itself.
type WorkerError struct {
	JobID   string
	ChunkID string
	Err     error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("job %s failed for chunk %s: %v", e.JobID, e.ChunkID, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// IsParseError checks whether err is a structural-parser failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsStale checks whether err marks a superseded job result.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleResult)
}
