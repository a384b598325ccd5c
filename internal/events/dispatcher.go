package events

import "log/slog"

// Dispatcher fans events out to registered handlers in registration order.
//
// Dispatch is synchronous and single-threaded: exactly one handler touches
// the args value at a time. For stages with control fields, the dispatcher
// stops the chain as soon as a handler requests cancel, skip, or abort, so
// later handlers never observe an already-stopped event. The dispatcher
// performs no business logic of its own.
type Dispatcher struct {
	handlers []Handler
}

// NewDispatcher creates a dispatcher with no handlers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// AddHandler appends a handler. Handlers run in the order they were added.
func (d *Dispatcher) AddHandler(h Handler) {
	d.handlers = append(d.handlers, h)
}

// HandlerCount reports the number of registered handlers.
func (d *Dispatcher) HandlerCount() int {
	return len(d.handlers)
}

// RaiseCompilationStarting dispatches the compilation-starting event.
// Stops early once a handler sets Cancel.
func (d *Dispatcher) RaiseCompilationStarting(args *CompilationStartingArgs) {
	for _, h := range d.handlers {
		h.OnCompilationStarting(args)
		if args.Cancel {
			slog.Debug("compilation cancelled by handler", "reason", args.CancelReason)
			return
		}
	}
}

// RaiseConfigurationLoaded dispatches the configuration-loaded event.
func (d *Dispatcher) RaiseConfigurationLoaded(args *ConfigurationLoadedArgs) {
	for _, h := range d.handlers {
		h.OnConfigurationLoaded(args)
	}
}

// RaiseValidation dispatches a validation checkpoint.
// Stops early once a handler sets Abort.
func (d *Dispatcher) RaiseValidation(args *ValidationArgs) {
	for _, h := range d.handlers {
		h.OnValidation(args)
		if args.Abort {
			slog.Debug("validation aborted by handler",
				"stage", args.StageName,
				"reason", args.AbortReason)
			return
		}
	}
}

// RaiseSourceLoading dispatches the source-loading event.
// Stops early once a handler sets Skip.
func (d *Dispatcher) RaiseSourceLoading(args *SourceLoadingArgs) {
	for _, h := range d.handlers {
		h.OnSourceLoading(args)
		if args.Skip {
			slog.Debug("source skipped by handler",
				"source", args.SourceURL,
				"reason", args.SkipReason)
			return
		}
	}
}

// RaiseSourceLoaded dispatches the source-loaded event.
func (d *Dispatcher) RaiseSourceLoaded(args *SourceLoadedArgs) {
	for _, h := range d.handlers {
		h.OnSourceLoaded(args)
	}
}

// RaiseFileLockAcquired dispatches the file-lock-acquired event.
func (d *Dispatcher) RaiseFileLockAcquired(args *FileLockAcquiredArgs) {
	for _, h := range d.handlers {
		h.OnFileLockAcquired(args)
	}
}

// RaiseFileLockReleased dispatches the file-lock-released event.
func (d *Dispatcher) RaiseFileLockReleased(args *FileLockReleasedArgs) {
	for _, h := range d.handlers {
		h.OnFileLockReleased(args)
	}
}

// RaiseFileLockFailed dispatches the file-lock-failed event.
// ContinueWithoutLock is a grant, not a stop request: every handler still
// sees the failure so observers after a policy handler are not starved.
func (d *Dispatcher) RaiseFileLockFailed(args *FileLockFailedArgs) {
	for _, h := range d.handlers {
		h.OnFileLockFailed(args)
	}
	if args.ContinueWithoutLock {
		slog.Debug("continuing without file lock", "path", args.FilePath)
	}
}

// RaiseChunkStarted dispatches the chunk-started event.
// Stops early once a handler sets Skip.
func (d *Dispatcher) RaiseChunkStarted(args *ChunkStartedArgs) {
	for _, h := range d.handlers {
		h.OnChunkStarted(args)
		if args.Skip {
			slog.Debug("chunk skipped by handler",
				"chunk", args.ChunkIndex,
				"reason", args.SkipReason)
			return
		}
	}
}

// RaiseChunkCompleted dispatches the chunk-completed event.
func (d *Dispatcher) RaiseChunkCompleted(args *ChunkCompletedArgs) {
	for _, h := range d.handlers {
		h.OnChunkCompleted(args)
	}
}

// RaiseChunksMerging dispatches the chunks-merging event.
func (d *Dispatcher) RaiseChunksMerging(args *ChunksMergingArgs) {
	for _, h := range d.handlers {
		h.OnChunksMerging(args)
	}
}

// RaiseChunksMerged dispatches the chunks-merged event.
func (d *Dispatcher) RaiseChunksMerged(args *ChunksMergedArgs) {
	for _, h := range d.handlers {
		h.OnChunksMerged(args)
	}
}

// RaiseCompilationCompleted dispatches the compilation-completed event.
func (d *Dispatcher) RaiseCompilationCompleted(args *CompilationCompletedArgs) {
	for _, h := range d.handlers {
		h.OnCompilationCompleted(args)
	}
}

// RaiseCompilationError dispatches the compilation-error event.
// Handled is an acknowledgement, not a stop request: the error still reaches
// every handler, including loggers registered after the one that handled it.
func (d *Dispatcher) RaiseCompilationError(args *CompilationErrorArgs) {
	for _, h := range d.handlers {
		h.OnCompilationError(args)
	}
	if args.Handled {
		slog.Debug("compilation error handled", "code", args.ErrorCode)
	}
}
