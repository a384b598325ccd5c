package chunk

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaypatrick/ad-blocking/internal/events"
)

// CompilerNotFoundError indicates no external compiler could be resolved.
// This is fatal to a whole run: no chunk can possibly succeed without one.
type CompilerNotFoundError struct{}

func (*CompilerNotFoundError) Error() string {
	return "hostlist-compiler not found on PATH (install with: npm install -g @adguard/hostlist-compiler)"
}

// Command is a resolved external compiler invocation.
type Command struct {
	// Path is the executable to run.
	Path string

	// BaseArgs precede the --config/--output pair. Used by the npx
	// fallback to name the package being proxied.
	BaseArgs []string
}

// Args builds the full argument list for one invocation.
func (c Command) Args(configPath, outputPath string) []string {
	args := make([]string, 0, len(c.BaseArgs)+4)
	args = append(args, c.BaseArgs...)
	return append(args, "--config", configPath, "--output", outputPath)
}

// Resolver locates the external compiler executable.
type Resolver func() (Command, error)

// ResolveCommand finds the external compiler: a hostlist-compiler binary on
// the search path, else npx proxying the @adguard/hostlist-compiler package.
func ResolveCommand() (Command, error) {
	if path, err := exec.LookPath("hostlist-compiler"); err == nil {
		return Command{Path: path}, nil
	}
	if path, err := exec.LookPath("npx"); err == nil {
		return Command{Path: path, BaseArgs: []string{"@adguard/hostlist-compiler"}}, nil
	}
	return Command{}, &CompilerNotFoundError{}
}

// Executor runs planned chunks through the external compiler in sequential
// batches bounded by Options.MaxParallel.
//
// Within a batch every chunk runs concurrently and the batch finishes only
// when all members finish; one chunk's failure never cancels its siblings.
// Events are dispatched single-threaded, outside the concurrent section.
type Executor struct {
	// Dispatcher receives chunk lifecycle events. Optional.
	Dispatcher *events.Dispatcher

	// Resolve overrides compiler resolution. Defaults to ResolveCommand.
	Resolve Resolver

	// Debug echoes every compiler invocation to the log.
	Debug bool
}

// Run executes the plan and merges the per-chunk outputs.
//
// A compiler resolution failure is returned immediately. Per-chunk failures
// are recorded in the result's Errors and never raised: batches after a
// failing chunk still run. Context cancellation is honored between batches;
// chunks already started run to completion.
func (e *Executor) Run(ctx context.Context, plan []Planned, opts *Options) (*Result, error) {
	start := time.Now()
	result := &Result{}

	resolve := e.Resolve
	if resolve == nil {
		resolve = ResolveCommand
	}
	cmd, err := resolve()
	if err != nil {
		return nil, err
	}

	maxParallel := max(1, opts.MaxParallel)
	totalBatches := ceilDiv(len(plan), maxParallel)

	slog.Info("compiling chunks",
		"chunks", len(plan),
		"max_parallel", maxParallel,
		"compiler", cmd.Path)

	chunkOutputs := make([][]string, len(plan))
	metadata := make([]Metadata, len(plan))

	for batchStart := 0; batchStart < len(plan); batchStart += maxParallel {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("run cancelled: %v", err))
			break
		}

		batchEnd := min(batchStart+maxParallel, len(plan))
		slog.Info("processing batch",
			"batch", batchStart/maxParallel+1,
			"total_batches", totalBatches,
			"chunks", fmt.Sprintf("%d-%d", batchStart+1, batchEnd))

		// Dispatch starts sequentially before spawning; handlers may skip
		// individual chunks.
		skipped := make([]bool, batchEnd-batchStart)
		for i := batchStart; i < batchEnd; i++ {
			p := plan[i]
			startArgs := &events.ChunkStartedArgs{
				Timestamp:      time.Now(),
				ChunkIndex:     p.Metadata.Index,
				TotalChunks:    p.Metadata.Total,
				SourceCount:    len(p.Metadata.Sources),
				EstimatedRules: p.Metadata.EstimatedRules,
			}
			if e.Dispatcher != nil {
				e.Dispatcher.RaiseChunkStarted(startArgs)
			}
			if startArgs.Skip {
				skipped[i-batchStart] = true
				meta := p.Metadata
				meta.Success = true
				metadata[i] = meta
				slog.Info("chunk skipped",
					"chunk", p.Metadata.Index+1,
					"reason", startArgs.SkipReason)
			}
		}

		var wg sync.WaitGroup
		for i := batchStart; i < batchEnd; i++ {
			if skipped[i-batchStart] {
				continue
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				chunkOutputs[i], metadata[i] = e.runChunk(ctx, cmd, plan[i])
			}(i)
		}
		wg.Wait()

		// Collect in index order so results are deterministic regardless of
		// which chunk finished first.
		for i := batchStart; i < batchEnd; i++ {
			meta := metadata[i]
			if e.Dispatcher != nil {
				e.Dispatcher.RaiseChunkCompleted(&events.ChunkCompletedArgs{
					Timestamp:    time.Now(),
					ChunkIndex:   meta.Index,
					TotalChunks:  meta.Total,
					Success:      meta.Success,
					ErrorMessage: meta.ErrorMessage,
					RuleCount:    meta.ActualRules,
					DurationMs:   float64(meta.ElapsedMs),
				})
			}
			if !meta.Success {
				result.Errors = append(result.Errors,
					fmt.Sprintf("chunk %d: %s", meta.Index+1, meta.ErrorMessage))
			}
			result.Chunks = append(result.Chunks, meta)
		}
	}

	result.TotalElapsedMs = time.Since(start).Milliseconds()

	// Merge whatever succeeded, preserving chunk index order.
	var successful [][]string
	rulesBefore := 0
	for i, meta := range metadata {
		if meta.Success && meta.Executed {
			successful = append(successful, chunkOutputs[i])
			rulesBefore += len(chunkOutputs[i])
		}
	}
	if len(successful) > 0 {
		if e.Dispatcher != nil {
			e.Dispatcher.RaiseChunksMerging(&events.ChunksMergingArgs{
				Timestamp:             time.Now(),
				ChunkCount:            len(successful),
				TotalRulesBeforeMerge: rulesBefore,
			})
		}
		mergeStart := time.Now()
		merged, removed := Merge(successful)
		result.MergedRules = merged
		result.FinalRuleCount = len(merged)
		result.DuplicatesRemoved = removed
		if e.Dispatcher != nil {
			e.Dispatcher.RaiseChunksMerged(&events.ChunksMergedArgs{
				Timestamp:             time.Now(),
				ChunkCount:            len(successful),
				TotalRulesBeforeMerge: rulesBefore,
				FinalRuleCount:        len(merged),
				DuplicatesRemoved:     removed,
				DurationMs:            float64(time.Since(mergeStart).Milliseconds()),
			})
		}
	}

	for _, meta := range result.Chunks {
		if meta.Success && meta.Executed {
			result.TotalRules += meta.ActualRules
		}
	}
	result.Success = len(result.Errors) == 0

	slog.Info("chunked compilation complete",
		"rules", result.FinalRuleCount,
		"duplicates_removed", result.DuplicatesRemoved,
		"elapsed_ms", result.TotalElapsedMs,
		"success", result.Success)
	if s := result.EstimatedSpeedup(); s > 1.0 {
		slog.Info("estimated speedup", "speedup", fmt.Sprintf("%.2fx", s))
	}

	return result, nil
}

// runChunk compiles one chunk through the external compiler.
// Failures are recorded in the returned metadata, never as an error: the
// caller isolates chunk failures from their batch siblings.
func (e *Executor) runChunk(ctx context.Context, cmd Command, p Planned) ([]string, Metadata) {
	meta := p.Metadata
	meta.Executed = true
	start := time.Now()

	slog.Debug("starting chunk",
		"chunk", meta.Index+1,
		"total", meta.Total,
		"name", p.Config.Name)

	// Temp files are namespaced per chunk so concurrent siblings never
	// collide, and removed on every exit path.
	configPath := filepath.Join(os.TempDir(), fmt.Sprintf("chunk-config-%s.json", uuid.NewString()))
	outputPath := filepath.Join(os.TempDir(), fmt.Sprintf("chunk-output-%s.txt", uuid.NewString()))
	defer os.Remove(configPath)
	defer os.Remove(outputPath)

	fail := func(format string, args ...any) ([]string, Metadata) {
		meta.Success = false
		meta.ElapsedMs = time.Since(start).Milliseconds()
		meta.ErrorMessage = fmt.Sprintf(format, args...)
		slog.Error("chunk failed",
			"chunk", meta.Index+1,
			"total", meta.Total,
			"error", meta.ErrorMessage)
		return nil, meta
	}

	data, err := p.Config.ToJSON()
	if err != nil {
		return fail("serializing chunk config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fail("writing chunk config to %s: %v", configPath, err)
	}

	args := cmd.Args(configPath, outputPath)
	if e.Debug {
		slog.Debug("running compiler", "cmd", cmd.Path, "args", strings.Join(args, " "))
	}

	proc := exec.CommandContext(ctx, cmd.Path, args...)
	proc.Stdout = io.Discard
	var stderr bytes.Buffer
	proc.Stderr = &stderr

	if err := proc.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return fail("compilation failed (%v): %s", err, strings.TrimSpace(stderr.String()))
		}
		return fail("starting compiler process: %v", err)
	}

	rules, err := readLines(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fail("compiler exited cleanly but produced no output file")
		}
		return fail("reading chunk output from %s: %v", outputPath, err)
	}

	meta.Success = true
	meta.ElapsedMs = time.Since(start).Milliseconds()
	meta.ActualRules = len(rules)
	meta.OutputPath = outputPath

	slog.Info("chunk complete",
		"chunk", meta.Index+1,
		"total", meta.Total,
		"rules", len(rules),
		"elapsed_ms", meta.ElapsedMs)

	return rules, meta
}

// readLines reads a newline-delimited file into a slice of lines.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
