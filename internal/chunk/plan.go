package chunk

import (
	"fmt"
	"log/slog"

	"github.com/jaypatrick/ad-blocking/internal/config"
)

// Planned pairs a chunk's derived sub-job with its metadata.
type Planned struct {
	Config   *config.CompilerConfig
	Metadata Metadata
}

// ShouldChunk decides whether a job benefits from chunking.
//
// Empty jobs never chunk. When opts is non-nil the caller's Enabled flag is
// authoritative. With default options, chunking kicks in for any job with
// more than one source.
func ShouldChunk(cfg *config.CompilerConfig, opts *Options) bool {
	if len(cfg.Sources) == 0 {
		return false
	}
	if opts != nil {
		return opts.Enabled
	}
	return len(cfg.Sources) > 1
}

// Plan partitions a job's sources into contiguous chunks.
//
// Sources are never reordered: chunk boundaries slice the input list so that
// merged output stays reproducible. Each sub-job carries all job-level
// settings; only the name gets a "(chunk i/total)" suffix for observability.
func Plan(cfg *config.CompilerConfig, opts *Options) []Planned {
	if len(cfg.Sources) == 0 {
		slog.Warn("no sources to chunk")
		return nil
	}

	slog.Info("splitting job into chunks", "strategy", opts.Strategy.String())

	if opts.Strategy == StrategyByLineCount {
		slog.Warn("by-line-count strategy not implemented, falling back to by-source")
	}
	return planBySource(cfg, opts)
}

func planBySource(cfg *config.CompilerConfig, opts *Options) []Planned {
	sources := cfg.Sources

	// Balance chunk sizes against the parallelism bound.
	perChunk := max(1, ceilDiv(len(sources), opts.MaxParallel))
	totalChunks := ceilDiv(len(sources), perChunk)

	slog.Info("planned chunks", "chunks", totalChunks, "sources_per_chunk", perChunk)

	plan := make([]Planned, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		start := i * perChunk
		end := min(start+perChunk, len(sources))
		chunkSources := sources[start:end]

		sub := &config.CompilerConfig{
			Name:            fmt.Sprintf("%s (chunk %d/%d)", cfg.Name, i+1, totalChunks),
			Description:     cfg.Description,
			Homepage:        cfg.Homepage,
			License:         cfg.License,
			Version:         cfg.Version,
			Sources:         chunkSources,
			Transformations: cfg.Transformations,
			Inclusions:      cfg.Inclusions,
			Exclusions:      cfg.Exclusions,
		}

		plan = append(plan, Planned{
			Config: sub,
			Metadata: Metadata{
				Index:   i,
				Total:   totalChunks,
				Sources: chunkSources,
			},
		})
	}
	return plan
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
