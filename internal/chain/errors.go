package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable means the transport failed or timed out. For a write
	// this is "unknown outcome": the transaction may still land, so callers
	// must reconcile by re-reading state rather than blindly retrying.
	ErrUnreachable = errors.New("chain gateway unreachable")

	// ErrNotFound means the requested record does not exist on the ledger.
	ErrNotFound = errors.New("report not found")
)

// RejectedError means the ledger refused the write. Unlike ErrUnreachable
// this is definitive: the write did not happen.
type RejectedError struct {
	Method string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("chain rejected %s: %s", e.Method, e.Reason)
}
