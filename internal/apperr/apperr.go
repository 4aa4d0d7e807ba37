// Package apperr collects the sentinel errors shared across the
// indexer's components, so a JSON-RPC or REST handler can classify a
// failure with a single errors.Is check regardless of which layer
// produced it.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection indicates the daemon connection is down or a
	// request to it failed for a reason outside our control (timeout,
	// refused connection, daemon still starting up).
	ErrConnection = errors.New("daemon connection unavailable")

	// ErrTooPopular indicates a query's result set exceeds a
	// configured limit (ChainQuery.UtxosLimit, ChainQuery.TxsLimit) and
	// was rejected rather than truncated silently.
	ErrTooPopular = errors.New("too popular")

	// ErrNotFound indicates a requested row (block, transaction,
	// scripthash history, color id) does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrInvalid indicates malformed input reached a boundary that
	// validates it: a bad hex string, an out-of-range height, a
	// transaction whose colored-output spans don't balance. Unlike a
	// panic, this is expected, attacker-reachable input.
	ErrInvalid = errors.New("invalid input")
)

// Wrap annotates err with msg while preserving errors.Is matching
// against sentinel, mirroring the fmt.Errorf("...: %w", err) wrapping
// convention used throughout this codebase.
func Wrap(sentinel error, msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", msg, sentinel, err)
}
