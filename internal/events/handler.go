package events

// Handler receives compilation pipeline events. One method per stage;
// implementations only need behavior for the stages they care about and can
// embed NoOpHandler for the rest.
type Handler interface {
	OnCompilationStarting(args *CompilationStartingArgs)
	OnConfigurationLoaded(args *ConfigurationLoadedArgs)
	OnValidation(args *ValidationArgs)
	OnSourceLoading(args *SourceLoadingArgs)
	OnSourceLoaded(args *SourceLoadedArgs)
	OnFileLockAcquired(args *FileLockAcquiredArgs)
	OnFileLockReleased(args *FileLockReleasedArgs)
	OnFileLockFailed(args *FileLockFailedArgs)
	OnChunkStarted(args *ChunkStartedArgs)
	OnChunkCompleted(args *ChunkCompletedArgs)
	OnChunksMerging(args *ChunksMergingArgs)
	OnChunksMerged(args *ChunksMergedArgs)
	OnCompilationCompleted(args *CompilationCompletedArgs)
	OnCompilationError(args *CompilationErrorArgs)
}

// NoOpHandler implements Handler with empty methods. Embed it to implement
// only the callbacks a handler actually needs.
type NoOpHandler struct{}

var _ Handler = (*NoOpHandler)(nil)

func (NoOpHandler) OnCompilationStarting(*CompilationStartingArgs) {}
func (NoOpHandler) OnConfigurationLoaded(*ConfigurationLoadedArgs) {}
func (NoOpHandler) OnValidation(*ValidationArgs)                   {}
func (NoOpHandler) OnSourceLoading(*SourceLoadingArgs)             {}
func (NoOpHandler) OnSourceLoaded(*SourceLoadedArgs)               {}
func (NoOpHandler) OnFileLockAcquired(*FileLockAcquiredArgs)       {}
func (NoOpHandler) OnFileLockReleased(*FileLockReleasedArgs)       {}
func (NoOpHandler) OnFileLockFailed(*FileLockFailedArgs)           {}
func (NoOpHandler) OnChunkStarted(*ChunkStartedArgs)               {}
func (NoOpHandler) OnChunkCompleted(*ChunkCompletedArgs)           {}
func (NoOpHandler) OnChunksMerging(*ChunksMergingArgs)             {}
func (NoOpHandler) OnChunksMerged(*ChunksMergedArgs)               {}
func (NoOpHandler) OnCompilationCompleted(*CompilationCompletedArgs) {}
func (NoOpHandler) OnCompilationError(*CompilationErrorArgs)       {}
