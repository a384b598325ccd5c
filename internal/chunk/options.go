// Package chunk plans, executes, and merges chunked rule list compilation.
//
// A job's sources are partitioned into contiguous chunks, each compiled by an
// independent external compiler process. Chunks run in sequential batches
// bounded by MaxParallel, and their outputs merge into one deterministic,
// deduplicated rule list.
package chunk

import "runtime"

// Strategy selects how sources are partitioned into chunks.
type Strategy int

const (
	// StrategyBySource assigns a contiguous group of sources to each chunk.
	StrategyBySource Strategy = iota

	// StrategyByLineCount would balance chunks by estimated line count.
	// Not implemented: it falls back to StrategyBySource with a warning.
	StrategyByLineCount
)

// String returns the name of the strategy.
func (s Strategy) String() string {
	if s == StrategyByLineCount {
		return "by-line-count"
	}
	return "by-source"
}

// Options controls chunked compilation.
type Options struct {
	// Enabled turns chunking on. When false, jobs compile as a single unit.
	Enabled bool

	// ChunkSize is the maximum estimated rules per chunk, used by the
	// theoretical speedup estimate.
	ChunkSize int

	// MaxParallel bounds concurrent compiler processes. Always >= 1.
	MaxParallel int

	// Strategy selects the partitioning scheme.
	Strategy Strategy
}

// DefaultOptions returns chunking options with chunking disabled and
// parallelism matching the machine's CPU count.
func DefaultOptions() *Options {
	return &Options{
		Enabled:     false,
		ChunkSize:   100_000,
		MaxParallel: max(1, runtime.NumCPU()),
		Strategy:    StrategyBySource,
	}
}

// ForLargeLists returns chunking options tuned for large filter lists:
// chunking enabled with at least two workers.
func ForLargeLists() *Options {
	return &Options{
		Enabled:     true,
		ChunkSize:   100_000,
		MaxParallel: max(2, runtime.NumCPU()),
		Strategy:    StrategyBySource,
	}
}
