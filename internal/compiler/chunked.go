package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jaypatrick/ad-blocking/internal/chunk"
	"github.com/jaypatrick/ad-blocking/internal/config"
	"github.com/jaypatrick/ad-blocking/internal/events"
	"github.com/jaypatrick/ad-blocking/internal/filelock"
	"github.com/jaypatrick/ad-blocking/internal/integrity"
)

// LockPolicy decides how source file lock failures are handled.
type LockPolicy int

const (
	// LockPermissive logs lock failures and continues unprotected.
	// This is the default: advisory locks are a correctness signal, not a
	// prerequisite.
	LockPermissive LockPolicy = iota

	// LockStrict stops the run when a source file cannot be locked, unless
	// a handler explicitly grants continuation.
	LockStrict
)

// ChunkedCompiler orchestrates a full chunked compilation run: source
// locking, validation checkpoints, chunk planning and execution, and the
// event pipeline around all of it.
type ChunkedCompiler struct {
	// Dispatcher receives every pipeline event. Optional.
	Dispatcher *events.Dispatcher

	// Locks guards local source files for the duration of the run.
	// Optional; nil disables locking.
	Locks *filelock.Service

	// Resolve overrides compiler resolution. Defaults to chunk.ResolveCommand.
	Resolve chunk.Resolver

	// Policy decides whether lock failures stop the run.
	Policy LockPolicy

	// Debug echoes compiler invocations to the log.
	Debug bool
}

// heldLock pairs a lock handle with its acquisition hash for release-time
// modification detection.
type heldLock struct {
	handle     *filelock.Handle
	hashBefore string
}

// Compile runs the whole chunked pipeline over cfg.
//
// Handler cancellation and validation aborts return a PipelineError.
// A compiler resolution failure is returned as-is. Per-chunk failures are
// reported inside the result with Success=false, never as an error.
func (c *ChunkedCompiler) Compile(ctx context.Context, cfg *config.CompilerConfig, opts *chunk.Options) (*chunk.Result, error) {
	d := c.Dispatcher
	if d == nil {
		d = events.NewDispatcher()
	}

	startArgs := &events.CompilationStartingArgs{
		Timestamp:  time.Now(),
		ConfigPath: cfg.SourcePath(),
	}
	d.RaiseCompilationStarting(startArgs)
	if startArgs.Cancel {
		return nil, &PipelineError{
			Code:    ErrCodeCancelled,
			Stage:   "compilation-starting",
			Message: cancelMessage(startArgs.CancelReason),
		}
	}

	d.RaiseConfigurationLoaded(&events.ConfigurationLoadedArgs{
		Timestamp:   time.Now(),
		ConfigPath:  cfg.SourcePath(),
		ConfigName:  cfg.Name,
		SourceCount: len(cfg.Sources),
	})

	// Announce each source and let handlers drop individual entries.
	sources := c.loadSources(d, cfg)

	job := cfg
	if len(sources) != len(cfg.Sources) {
		trimmed := *cfg
		trimmed.Sources = sources
		job = &trimmed
	}

	// Lock every local source for the duration of the run.
	held, err := c.lockSources(d, job)
	if err != nil {
		c.raiseError(d, err)
		return nil, err
	}
	defer c.releaseLocks(d, held)

	// Zero-trust checkpoint: handlers inspect the job before any compiler
	// process is spawned.
	validation := &events.ValidationArgs{
		Timestamp:      time.Now(),
		StageName:      "pre-compilation",
		ItemsValidated: len(job.Sources),
	}
	if err := job.Validate(); err != nil {
		validation.AddError("INVALID_CONFIG", err.Error())
	}
	d.RaiseValidation(validation)
	if validation.Abort {
		abortErr := &PipelineError{
			Code:    ErrCodeAborted,
			Stage:   validation.StageName,
			Message: abortMessage(validation.AbortReason),
		}
		c.raiseError(d, abortErr)
		return nil, abortErr
	}

	execOpts := opts
	if execOpts == nil {
		execOpts = chunk.DefaultOptions()
	}

	var plan []chunk.Planned
	if chunk.ShouldChunk(job, opts) {
		plan = chunk.Plan(job, execOpts)
	} else {
		slog.Info("chunking disabled for this job, compiling as a single unit",
			"sources", len(job.Sources))
		plan = []chunk.Planned{{
			Config: job,
			Metadata: chunk.Metadata{
				Index:   0,
				Total:   1,
				Sources: job.Sources,
			},
		}}
	}

	executor := &chunk.Executor{
		Dispatcher: d,
		Resolve:    c.Resolve,
		Debug:      c.Debug,
	}
	result, err := executor.Run(ctx, plan, execOpts)
	if err != nil {
		c.raiseError(d, err)
		return nil, err
	}

	// Post-compilation checkpoint: audit handlers surface integrity
	// findings accumulated during the run.
	post := &events.ValidationArgs{
		Timestamp:      time.Now(),
		StageName:      "post-compilation",
		ItemsValidated: len(result.Chunks),
	}
	d.RaiseValidation(post)
	if post.Abort {
		abortErr := &PipelineError{
			Code:    ErrCodeAborted,
			Stage:   post.StageName,
			Message: abortMessage(post.AbortReason),
		}
		c.raiseError(d, abortErr)
		return result, abortErr
	}

	if result.Success {
		var contentHash string
		if len(result.MergedRules) > 0 {
			contentHash = integrity.HashBytes([]byte(strings.Join(result.MergedRules, "\n") + "\n"))
		}
		d.RaiseCompilationCompleted(&events.CompilationCompletedArgs{
			Timestamp:   time.Now(),
			RuleCount:   result.FinalRuleCount,
			DurationMs:  float64(result.TotalElapsedMs),
			ContentHash: contentHash,
		})
	} else {
		d.RaiseCompilationError(&events.CompilationErrorArgs{
			Timestamp:    time.Now(),
			ErrorMessage: strings.Join(result.Errors, "; "),
			ErrorCode:    "CHUNK_FAILURES",
		})
	}

	return result, nil
}

// loadSources dispatches loading/loaded events per source and returns the
// sources that no handler skipped.
func (c *ChunkedCompiler) loadSources(d *events.Dispatcher, cfg *config.CompilerConfig) []config.FilterSource {
	kept := make([]config.FilterSource, 0, len(cfg.Sources))
	for i, src := range cfg.Sources {
		local := isLocalFile(src.Source)
		loading := &events.SourceLoadingArgs{
			Timestamp:    time.Now(),
			SourceIndex:  i,
			TotalSources: len(cfg.Sources),
			SourceURL:    src.Source,
			SourceName:   src.Name,
			IsLocalFile:  local,
		}
		d.RaiseSourceLoading(loading)
		if loading.Skip {
			slog.Info("source skipped",
				"source", src.Source,
				"reason", loading.SkipReason)
			continue
		}

		loaded := &events.SourceLoadedArgs{
			Timestamp:    time.Now(),
			SourceIndex:  i,
			TotalSources: len(cfg.Sources),
			SourceURL:    src.Source,
			SourceName:   src.Name,
			IsLocalFile:  local,
			Success:      true,
		}
		if local {
			start := time.Now()
			info, err := os.Stat(src.Source)
			if err != nil {
				loaded.Success = false
				loaded.ErrorMessage = err.Error()
			} else {
				loaded.ContentSizeBytes = info.Size()
				hash, err := integrity.HashFile(src.Source)
				if err == nil {
					loaded.ContentHash = hash
				}
			}
			loaded.LoadDurationMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
		d.RaiseSourceLoaded(loaded)

		kept = append(kept, src)
	}
	return kept
}

// lockSources takes a read lock on every local source file.
func (c *ChunkedCompiler) lockSources(d *events.Dispatcher, cfg *config.CompilerConfig) ([]heldLock, error) {
	if c.Locks == nil {
		return nil, nil
	}

	var held []heldLock
	for _, src := range cfg.Sources {
		if !isLocalFile(src.Source) {
			continue
		}

		handle, err := c.Locks.AcquireRead(src.Source)
		if err != nil {
			failArgs := &events.FileLockFailedArgs{
				Timestamp:    time.Now(),
				FilePath:     src.Source,
				LockType:     filelock.LockRead,
				Reason:       "could not acquire read lock",
				ErrorMessage: err.Error(),
			}
			d.RaiseFileLockFailed(failArgs)

			if c.Policy == LockStrict && !failArgs.ContinueWithoutLock {
				c.releaseLocks(d, held)
				return nil, &PipelineError{
					Code:    ErrCodeLockFailed,
					Stage:   "source-locking",
					Message: fmt.Sprintf("cannot lock %s: %v", src.Source, err),
				}
			}
			slog.Warn("continuing without lock", "path", src.Source, "error", err)
			continue
		}

		d.RaiseFileLockAcquired(&events.FileLockAcquiredArgs{
			Timestamp:   time.Now(),
			FilePath:    handle.Path(),
			LockType:    handle.LockType(),
			LockID:      handle.ID(),
			ContentHash: handle.ContentHash(),
		})
		held = append(held, heldLock{handle: handle, hashBefore: handle.ContentHash()})
	}
	return held, nil
}

// releaseLocks releases held locks in reverse order, reporting whether each
// file changed while locked.
func (c *ChunkedCompiler) releaseLocks(d *events.Dispatcher, held []heldLock) {
	for i := len(held) - 1; i >= 0; i-- {
		h := held[i]

		hashAfter := ""
		modified := false
		if h.hashBefore != "" {
			if after, err := integrity.HashFile(h.handle.Path()); err == nil {
				hashAfter = after
				modified = after != h.hashBefore
			}
		}

		duration := time.Since(h.handle.AcquiredAt())
		if err := h.handle.Release(); err != nil {
			slog.Error("releasing lock", "path", h.handle.Path(), "error", err)
		}

		d.RaiseFileLockReleased(&events.FileLockReleasedArgs{
			Timestamp:      time.Now(),
			FilePath:       h.handle.Path(),
			LockID:         h.handle.ID(),
			LockDurationMs: float64(duration.Milliseconds()),
			WasModified:    modified,
			HashBefore:     h.hashBefore,
			HashAfter:      hashAfter,
		})
	}
}

func (c *ChunkedCompiler) raiseError(d *events.Dispatcher, err error) {
	args := &events.CompilationErrorArgs{
		Timestamp:    time.Now(),
		ErrorMessage: err.Error(),
	}
	var pe *PipelineError
	var nf *chunk.CompilerNotFoundError
	switch {
	case errors.As(err, &pe):
		args.ErrorCode = string(pe.Code)
	case errors.As(err, &nf):
		args.ErrorCode = "COMPILER_NOT_FOUND"
	}
	d.RaiseCompilationError(args)
}

func isLocalFile(locator string) bool {
	if strings.Contains(locator, "://") {
		return false
	}
	_, err := os.Stat(locator)
	return err == nil
}

func cancelMessage(reason string) string {
	if reason == "" {
		return "compilation cancelled by handler"
	}
	return reason
}

func abortMessage(reason string) string {
	if reason == "" {
		return "compilation aborted by handler"
	}
	return reason
}
