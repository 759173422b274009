package tracing

import "runtime"

// Config holds the tunables spec.md §6.3 names: the Range Filter's
// maximum block span and the Permit Gate's capacity. RangeFilterWorkers
// is this implementation's own addition (SPEC_FULL.md §2.3) bounding
// how many blocks trace_filter fans out to concurrently, independent
// of the permit gate which bounds concurrent top-level RPC calls.
type Config struct {
	MaxTraceFilterBlocks      uint64
	MaxConcurrentTracingCalls int64
	RangeFilterWorkers        int
}

// DefaultConfig mirrors common Parity-client defaults: a few hundred
// blocks per filter call, a fixed budget of concurrent tracing calls,
// and a trace_filter fan-out width equal to GOMAXPROCS.
func DefaultConfig() Config {
	return Config{
		MaxTraceFilterBlocks:      300,
		MaxConcurrentTracingCalls: 64,
		RangeFilterWorkers:        runtime.GOMAXPROCS(0),
	}
}
