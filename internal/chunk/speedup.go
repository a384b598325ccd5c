package chunk

// EstimateSpeedup predicts the theoretical speedup of chunking a list of
// totalRules rules under the given options, using a simple linear model:
// the speedup is bounded by both the number of chunks the list would split
// into and the parallelism limit. Returns 1.0 when chunking is disabled or
// there is nothing to compile.
func EstimateSpeedup(totalRules int, opts *Options) float64 {
	if !opts.Enabled || totalRules == 0 {
		return 1.0
	}

	numChunks := ceilDiv(totalRules, opts.ChunkSize)
	return min(float64(numChunks), float64(opts.MaxParallel))
}
