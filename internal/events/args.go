// Package events implements the compilation event pipeline: typed event
// arguments for each stage and an ordered dispatcher that lets handlers
// cooperatively cancel, skip, or abort work.
//
// Arguments are constructed immediately before dispatch, passed to each
// handler in registration order, and discarded afterwards. Handlers mutate
// control fields (Cancel, Skip, Abort, Handled, ContinueWithoutLock) to steer
// the pipeline; the dispatcher stops the handler chain as soon as such a
// request is made.
package events

import (
	"time"

	"github.com/jaypatrick/ad-blocking/internal/filelock"
)

// CompilationStartingArgs announces that a compilation run is about to begin.
// Handlers may set Cancel to stop the run before any work happens.
type CompilationStartingArgs struct {
	Timestamp  time.Time
	ConfigPath string

	Cancel       bool
	CancelReason string
}

// ConfigurationLoadedArgs reports a successfully parsed configuration.
type ConfigurationLoadedArgs struct {
	Timestamp   time.Time
	ConfigPath  string
	ConfigName  string
	SourceCount int
}

// ValidationArgs accumulates findings for one validation checkpoint.
// Handlers may append findings; a critical finding forces Abort.
type ValidationArgs struct {
	Timestamp      time.Time
	StageName      string
	Findings       []Finding
	DurationMs     float64
	ItemsValidated int

	Abort       bool
	AbortReason string
}

// Passed reports whether the stage produced no error or critical findings.
func (a *ValidationArgs) Passed() bool {
	for _, f := range a.Findings {
		if f.Severity >= SeverityError {
			return false
		}
	}
	return true
}

// AddFinding appends a finding. Critical findings force an abort.
func (a *ValidationArgs) AddFinding(f Finding) {
	if f.Severity == SeverityCritical {
		a.Abort = true
		if a.AbortReason == "" {
			a.AbortReason = f.Message
		}
	}
	a.Findings = append(a.Findings, f)
}

// AddError appends an error-severity finding.
func (a *ValidationArgs) AddError(code, message string) {
	a.AddFinding(NewFinding(SeverityError, code, message))
}

// AddWarning appends a warning-severity finding.
func (a *ValidationArgs) AddWarning(code, message string) {
	a.AddFinding(NewFinding(SeverityWarning, code, message))
}

// AddCritical appends a critical finding, forcing an abort.
func (a *ValidationArgs) AddCritical(code, message string) {
	a.AddFinding(NewFinding(SeverityCritical, code, message))
}

// SourceLoadingArgs announces that a source is about to be loaded.
// Handlers may set Skip to leave this source out of the run.
type SourceLoadingArgs struct {
	Timestamp    time.Time
	SourceIndex  int
	TotalSources int
	SourceURL    string
	SourceName   string
	IsLocalFile  bool

	Skip       bool
	SkipReason string
}

// SourceLoadedArgs reports the outcome of loading one source.
type SourceLoadedArgs struct {
	Timestamp          time.Time
	SourceIndex        int
	TotalSources       int
	SourceURL          string
	SourceName         string
	IsLocalFile        bool
	Success            bool
	ErrorMessage       string
	ContentSizeBytes   int64
	EstimatedRuleCount int
	LoadDurationMs     float64
	ContentHash        string
}

// FileLockAcquiredArgs reports a successful lock acquisition.
type FileLockAcquiredArgs struct {
	Timestamp   time.Time
	FilePath    string
	LockType    filelock.LockType
	LockID      string
	ContentHash string
}

// FileLockReleasedArgs reports a lock release, including whether the file
// changed while the lock was held.
type FileLockReleasedArgs struct {
	Timestamp      time.Time
	FilePath       string
	LockID         string
	LockDurationMs float64
	WasModified    bool
	HashBefore     string
	HashAfter      string
}

// FileLockFailedArgs reports a failed lock acquisition. Handlers may set
// ContinueWithoutLock to let the run proceed unprotected.
type FileLockFailedArgs struct {
	Timestamp time.Time
	FilePath  string
	LockType  filelock.LockType
	Reason    string

	ContinueWithoutLock bool
	ErrorMessage        string
}

// ChunkStartedArgs announces that a chunk is about to be compiled.
// Handlers may set Skip to leave the chunk uncompiled.
type ChunkStartedArgs struct {
	Timestamp      time.Time
	ChunkIndex     int
	TotalChunks    int
	SourceCount    int
	EstimatedRules int

	Skip       bool
	SkipReason string
}

// ChunkCompletedArgs reports a finished chunk, successful or not.
type ChunkCompletedArgs struct {
	Timestamp    time.Time
	ChunkIndex   int
	TotalChunks  int
	Success      bool
	ErrorMessage string
	RuleCount    int
	DurationMs   float64
}

// ChunksMergingArgs announces that per-chunk outputs are about to merge.
type ChunksMergingArgs struct {
	Timestamp            time.Time
	ChunkCount           int
	TotalRulesBeforeMerge int
}

// ChunksMergedArgs reports the merge outcome.
type ChunksMergedArgs struct {
	Timestamp             time.Time
	ChunkCount            int
	TotalRulesBeforeMerge int
	FinalRuleCount        int
	DuplicatesRemoved     int
	DurationMs            float64
}

// CompilationCompletedArgs reports a finished compilation run.
type CompilationCompletedArgs struct {
	Timestamp   time.Time
	RuleCount   int
	OutputPath  string
	DurationMs  float64
	ContentHash string
}

// CompilationErrorArgs reports a fatal compilation error. Handlers may set
// Handled to indicate the error was dealt with.
type CompilationErrorArgs struct {
	Timestamp    time.Time
	ErrorMessage string
	ErrorCode    string

	Handled bool
}
