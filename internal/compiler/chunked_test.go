//go:build unix

package compiler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaypatrick/ad-blocking/internal/chunk"
	"github.com/jaypatrick/ad-blocking/internal/config"
	"github.com/jaypatrick/ad-blocking/internal/events"
	"github.com/jaypatrick/ad-blocking/internal/filelock"
	"github.com/jaypatrick/ad-blocking/internal/testutil"
)

// pipelineRecorder captures the event sequence of a run and can flip the
// mutable flags at each stage.
type pipelineRecorder struct {
	events.NoOpHandler
	calls []string

	cancelStart         bool
	abortStage          string
	abortOnFailure      bool
	skipSourceIndex     int
	continueWithoutLock bool
}

func newPipelineRecorder() *pipelineRecorder {
	return &pipelineRecorder{skipSourceIndex: -1}
}

func (r *pipelineRecorder) OnCompilationStarting(args *events.CompilationStartingArgs) {
	r.calls = append(r.calls, "starting")
	if r.cancelStart {
		args.Cancel = true
		args.CancelReason = "maintenance window"
	}
}

func (r *pipelineRecorder) OnConfigurationLoaded(args *events.ConfigurationLoadedArgs) {
	r.calls = append(r.calls, fmt.Sprintf("config-loaded:%d", args.SourceCount))
}

func (r *pipelineRecorder) OnValidation(args *events.ValidationArgs) {
	r.calls = append(r.calls, "validation:"+args.StageName)
	if r.abortStage == args.StageName {
		args.Abort = true
		args.AbortReason = "rejected by policy"
	}
	if r.abortOnFailure && !args.Passed() {
		args.Abort = true
		args.AbortReason = "validation findings present"
	}
}

func (r *pipelineRecorder) OnSourceLoading(args *events.SourceLoadingArgs) {
	r.calls = append(r.calls, fmt.Sprintf("source-loading:%d", args.SourceIndex))
	if args.SourceIndex == r.skipSourceIndex {
		args.Skip = true
		args.SkipReason = "excluded by test"
	}
}

func (r *pipelineRecorder) OnSourceLoaded(args *events.SourceLoadedArgs) {
	r.calls = append(r.calls, fmt.Sprintf("source-loaded:%d", args.SourceIndex))
}

func (r *pipelineRecorder) OnFileLockAcquired(args *events.FileLockAcquiredArgs) {
	r.calls = append(r.calls, "lock-acquired")
}

func (r *pipelineRecorder) OnFileLockReleased(args *events.FileLockReleasedArgs) {
	r.calls = append(r.calls, "lock-released")
}

func (r *pipelineRecorder) OnFileLockFailed(args *events.FileLockFailedArgs) {
	r.calls = append(r.calls, "lock-failed")
	if r.continueWithoutLock {
		args.ContinueWithoutLock = true
	}
}

func (r *pipelineRecorder) OnChunkStarted(args *events.ChunkStartedArgs) {
	r.calls = append(r.calls, fmt.Sprintf("chunk-started:%d", args.ChunkIndex))
}

func (r *pipelineRecorder) OnChunkCompleted(args *events.ChunkCompletedArgs) {
	r.calls = append(r.calls, fmt.Sprintf("chunk-completed:%d", args.ChunkIndex))
}

func (r *pipelineRecorder) OnChunksMerged(args *events.ChunksMergedArgs) {
	r.calls = append(r.calls, "merged")
}

func (r *pipelineRecorder) OnCompilationCompleted(args *events.CompilationCompletedArgs) {
	r.calls = append(r.calls, fmt.Sprintf("completed:%d", args.RuleCount))
}

func (r *pipelineRecorder) OnCompilationError(args *events.CompilationErrorArgs) {
	r.calls = append(r.calls, "error:"+args.ErrorCode)
}

// chunkedJob builds a config of local source files, one per rule set.
func chunkedJob(t *testing.T, ruleSets ...[]string) *config.CompilerConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.CompilerConfig{Name: "Chunked Job"}
	for i, rules := range ruleSets {
		path := testutil.SourceFile(t, dir, fmt.Sprintf("source-%d.txt", i), rules...)
		cfg.Sources = append(cfg.Sources, config.FilterSource{
			Name:   fmt.Sprintf("source-%d", i),
			Source: path,
		})
	}
	return cfg
}

func fakeResolver(t *testing.T) chunk.Resolver {
	t.Helper()
	path := testutil.FakeCompiler(t)
	return func() (chunk.Command, error) {
		return chunk.Command{Path: path}, nil
	}
}

func TestChunkedCompile_EndToEnd(t *testing.T) {
	cfg := chunkedJob(t, []string{"a"}, []string{"b"}, []string{"a"})
	rec := newPipelineRecorder()
	d := events.NewDispatcher()
	d.AddHandler(rec)
	locks := filelock.NewService()

	c := &ChunkedCompiler{
		Dispatcher: d,
		Locks:      locks,
		Resolve:    fakeResolver(t),
	}
	opts := &chunk.Options{Enabled: true, MaxParallel: 3, Strategy: chunk.StrategyBySource}
	result, err := c.Compile(context.Background(), cfg, opts)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"a", "b"}, result.MergedRules)
	assert.Equal(t, 1, result.DuplicatesRemoved)

	// All locks are released by the time Compile returns.
	assert.Equal(t, 0, locks.ActiveCount())

	assert.Equal(t, "starting", rec.calls[0])
	assert.Equal(t, "config-loaded:3", rec.calls[1])
	assert.Contains(t, rec.calls, "validation:pre-compilation")
	assert.Contains(t, rec.calls, "validation:post-compilation")
	assert.Contains(t, rec.calls, "completed:2")
	count := func(name string) int {
		n := 0
		for _, call := range rec.calls {
			if call == name {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 3, count("lock-acquired"))
	assert.Equal(t, 3, count("lock-released"))
}

func TestChunkedCompile_CancelledByHandler(t *testing.T) {
	cfg := chunkedJob(t, []string{"a"})
	rec := newPipelineRecorder()
	rec.cancelStart = true
	d := events.NewDispatcher()
	d.AddHandler(rec)

	c := &ChunkedCompiler{Dispatcher: d, Resolve: fakeResolver(t)}
	result, err := c.Compile(context.Background(), cfg, nil)

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Contains(t, err.Error(), "maintenance window")
	assert.NotContains(t, rec.calls, "validation:pre-compilation")
}

func TestChunkedCompile_AbortAtPreValidation(t *testing.T) {
	cfg := chunkedJob(t, []string{"a"}, []string{"b"})
	rec := newPipelineRecorder()
	rec.abortStage = "pre-compilation"
	d := events.NewDispatcher()
	d.AddHandler(rec)

	c := &ChunkedCompiler{Dispatcher: d, Resolve: fakeResolver(t)}
	result, err := c.Compile(context.Background(), cfg, nil)

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	// No compiler was invoked.
	assert.NotContains(t, rec.calls, "chunk-started:0")
	assert.Contains(t, rec.calls, "error:ABORTED")
}

func TestChunkedCompile_AbortAtPostValidation(t *testing.T) {
	cfg := chunkedJob(t, []string{"a"})
	rec := newPipelineRecorder()
	rec.abortStage = "post-compilation"
	d := events.NewDispatcher()
	d.AddHandler(rec)

	c := &ChunkedCompiler{Dispatcher: d, Resolve: fakeResolver(t)}
	result, err := c.Compile(context.Background(), cfg, nil)

	// The chunks already ran, so the partial result is still returned.
	require.NotNil(t, result)
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	assert.NotContains(t, rec.calls, "completed:1")
}

func TestChunkedCompile_InvalidConfigCanAbort(t *testing.T) {
	cfg := &config.CompilerConfig{Name: "No Sources"}
	rec := newPipelineRecorder()
	rec.abortOnFailure = true
	d := events.NewDispatcher()
	d.AddHandler(rec)

	c := &ChunkedCompiler{Dispatcher: d, Resolve: fakeResolver(t)}
	_, err := c.Compile(context.Background(), cfg, nil)

	require.Error(t, err)
	assert.True(t, IsAborted(err))
}

func TestChunkedCompile_StrictLockFailure(t *testing.T) {
	cfg := chunkedJob(t, []string{"a"}, []string{"b"})

	// An outside writer holds an exclusive lock on the second source.
	other := filelock.NewService()
	blocker, err := other.AcquireWrite(cfg.Sources[1].Source)
	require.NoError(t, err)
	defer blocker.Release()

	rec := newPipelineRecorder()
	d := events.NewDispatcher()
	d.AddHandler(rec)
	locks := filelock.NewService()

	c := &ChunkedCompiler{
		Dispatcher: d,
		Locks:      locks,
		Resolve:    fakeResolver(t),
		Policy:     LockStrict,
	}
	result, err := c.Compile(context.Background(), cfg, nil)

	assert.Nil(t, result)
	require.Error(t, err)
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeLockFailed, pe.Code)
	assert.Contains(t, rec.calls, "lock-failed")

	// The lock taken on the first source was rolled back.
	assert.Equal(t, 0, locks.ActiveCount())
}

func TestChunkedCompile_PermissiveLockFailure(t *testing.T) {
	cfg := chunkedJob(t, []string{"a"}, []string{"b"})

	other := filelock.NewService()
	blocker, err := other.AcquireWrite(cfg.Sources[1].Source)
	require.NoError(t, err)
	defer blocker.Release()

	rec := newPipelineRecorder()
	d := events.NewDispatcher()
	d.AddHandler(rec)

	c := &ChunkedCompiler{
		Dispatcher: d,
		Locks:      filelock.NewService(),
		Resolve:    fakeResolver(t),
	}
	result, err := c.Compile(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, rec.calls, "lock-failed")
	assert.Equal(t, []string{"a", "b"}, result.MergedRules)
}

func TestChunkedCompile_StrictWithContinueGrant(t *testing.T) {
	cfg := chunkedJob(t, []string{"a"})

	other := filelock.NewService()
	blocker, err := other.AcquireWrite(cfg.Sources[0].Source)
	require.NoError(t, err)
	defer blocker.Release()

	rec := newPipelineRecorder()
	rec.continueWithoutLock = true
	d := events.NewDispatcher()
	d.AddHandler(rec)

	c := &ChunkedCompiler{
		Dispatcher: d,
		Locks:      filelock.NewService(),
		Resolve:    fakeResolver(t),
		Policy:     LockStrict,
	}
	result, err := c.Compile(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestChunkedCompile_SourceSkipped(t *testing.T) {
	cfg := chunkedJob(t, []string{"a"}, []string{"b"})
	rec := newPipelineRecorder()
	rec.skipSourceIndex = 0
	d := events.NewDispatcher()
	d.AddHandler(rec)

	c := &ChunkedCompiler{Dispatcher: d, Resolve: fakeResolver(t)}
	result, err := c.Compile(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, result.MergedRules)
	assert.NotContains(t, rec.calls, "source-loaded:0")
	assert.Contains(t, rec.calls, "source-loaded:1")
}

func TestChunkedCompile_ChunkFailuresReported(t *testing.T) {
	cfg := chunkedJob(t, []string{"a"}, []string{"b"})
	rec := newPipelineRecorder()
	d := events.NewDispatcher()
	d.AddHandler(rec)

	failPath := testutil.FailingCompiler(t)
	c := &ChunkedCompiler{
		Dispatcher: d,
		Resolve: func() (chunk.Command, error) {
			return chunk.Command{Path: failPath}, nil
		},
	}
	opts := &chunk.Options{Enabled: true, MaxParallel: 2, Strategy: chunk.StrategyBySource}
	result, err := c.Compile(context.Background(), cfg, opts)

	// Per-chunk failures are part of the result, not a pipeline error.
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 2)
	assert.Contains(t, rec.calls, "error:CHUNK_FAILURES")
}

func TestChunkedCompile_CompilerNotFound(t *testing.T) {
	cfg := chunkedJob(t, []string{"a"})
	rec := newPipelineRecorder()
	d := events.NewDispatcher()
	d.AddHandler(rec)

	c := &ChunkedCompiler{
		Dispatcher: d,
		Resolve: func() (chunk.Command, error) {
			return chunk.Command{}, &chunk.CompilerNotFoundError{}
		},
	}
	_, err := c.Compile(context.Background(), cfg, nil)

	var notFound *chunk.CompilerNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, rec.calls, "error:COMPILER_NOT_FOUND")
}
