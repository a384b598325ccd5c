package chunk

import "github.com/jaypatrick/ad-blocking/internal/config"

// Metadata tracks one chunk through planning and execution.
// Index is unique within a result and 0 <= Index < Total. The struct is
// filled in as the chunk executes and is terminal once Success is set.
type Metadata struct {
	// Index is the 0-based chunk position.
	Index int

	// Total is the number of chunks in the plan.
	Total int

	// Sources assigned to this chunk.
	Sources []config.FilterSource

	// EstimatedRules before compilation, if known.
	EstimatedRules int

	// ActualRules counted from the compiler output. Valid once Executed.
	ActualRules int

	// ElapsedMs is the chunk's compilation wall time.
	ElapsedMs int64

	// Executed reports whether the external compiler ran for this chunk.
	// Skipped chunks never execute.
	Executed bool

	// Success reports whether compilation produced usable output.
	Success bool

	// ErrorMessage holds the failure detail for unsuccessful chunks.
	ErrorMessage string

	// OutputPath is where the compiler wrote this chunk's rules. The file
	// itself is temporary and removed after its lines are read.
	OutputPath string
}

// Result aggregates a whole chunked compilation run.
type Result struct {
	// Success is true only when every chunk compiled cleanly.
	Success bool

	// TotalElapsedMs is the wall time of the whole run.
	TotalElapsedMs int64

	// Chunks holds per-chunk detail in index order, regardless of the order
	// chunks happened to finish in.
	Chunks []Metadata

	// TotalRules is the sum of ActualRules across successful chunks.
	TotalRules int

	// FinalRuleCount is the merged list length after deduplication.
	FinalRuleCount int

	// DuplicatesRemoved counts lines dropped by the merge.
	DuplicatesRemoved int

	// MergedRules is the final deduplicated output. Nil when no chunk
	// produced rules.
	MergedRules []string

	// Errors collects per-chunk failure messages.
	Errors []string
}

// EstimatedSpeedup reports the observed speedup versus a hypothetical
// sequential run: the sum of per-chunk elapsed times over total wall time.
// A ratio below 1.0 means chunking overhead dominated. Returns 1.0 only
// when there are no chunks or no measurable wall time.
func (r *Result) EstimatedSpeedup() float64 {
	if len(r.Chunks) == 0 || r.TotalElapsedMs == 0 {
		return 1.0
	}
	var chunkTime int64
	for _, c := range r.Chunks {
		chunkTime += c.ElapsedMs
	}
	return float64(chunkTime) / float64(r.TotalElapsedMs)
}
