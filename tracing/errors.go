package tracing

import "errors"

// Sentinel errors for the tracing error taxonomy, checked with
// errors.Is by the RPC layer to map them onto the right JSON-RPC error
// code (spec.md §7). ErrExecution and ErrTooManyConcurrentCalls are not
// returned by this package: runner failures are passed through as the
// Backend reports them, and PermitGate waits for a free permit instead
// of refusing a call.
var (
	ErrBlockNotFound          = errors.New("tracing: block not found")
	ErrTransactionNotFound    = errors.New("tracing: transaction not found")
	ErrInvalidBlockRange      = errors.New("tracing: invalid block range")
	ErrRangeTooLarge          = errors.New("tracing: block range exceeds the configured maximum")
	ErrInvalidRawTransaction  = errors.New("tracing: invalid raw transaction")
	ErrExecution              = errors.New("tracing: execution failed")
	ErrTooManyConcurrentCalls = errors.New("tracing: too many concurrent tracing calls")
)
