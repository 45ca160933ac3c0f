package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameters     = errors.New("invalid parameters")
	ErrInsufficientServers   = errors.New("insufficient servers registered for selection")
	ErrInsufficientFragments = errors.New("insufficient fragments available for reconstruction")
	ErrCorruptFragment       = errors.New("corrupt fragment")
	ErrChunkUnavailable      = errors.New("chunk unavailable")
	ErrChunkNotFound         = errors.New("chunk metadata not found")
	ErrEmptyChunk            = errors.New("cannot store empty chunk")
	ErrNotImplemented        = errors.New("this function is not yet implemented")
	ErrUnknownServer         = errors.New("unknown server")
	ErrFragmentNotFound      = errors.New("fragment not found")
)

// FetchingResourceError generates a formatted error for failed fetching of any resource by its type.
func FetchingResourceError(resource string, cause error) error {
	return fmt.Errorf("failed to fetch %s: %w", resource, cause)
}

func ConfigNotSetError(config string) error {
	return fmt.Errorf("the %s configuration value must be set", config)
}

// ChunkUnavailableError wraps the cause of a failed retrieval so that both
// ErrChunkUnavailable and the underlying reason match errors.Is.
func ChunkUnavailableError(chunkID string, cause error) error {
	return fmt.Errorf("%w: chunk %s: %w", ErrChunkUnavailable, chunkID, cause)
}
