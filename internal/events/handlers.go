package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaypatrick/ad-blocking/internal/integrity"
)

// LoggingHandler logs pipeline progress via slog. It never mutates control
// fields, so it is safe to register alongside policy handlers.
type LoggingHandler struct {
	NoOpHandler
}

func (LoggingHandler) OnCompilationStarting(args *CompilationStartingArgs) {
	slog.Info("compilation starting", "config", args.ConfigPath)
}

func (LoggingHandler) OnConfigurationLoaded(args *ConfigurationLoadedArgs) {
	slog.Info("configuration loaded",
		"name", args.ConfigName,
		"sources", args.SourceCount)
}

func (LoggingHandler) OnValidation(args *ValidationArgs) {
	for _, f := range args.Findings {
		slog.Log(context.Background(), severityLevel(f.Severity), "validation finding",
			"stage", args.StageName,
			"code", f.Code,
			"message", f.Message)
	}
}

func (LoggingHandler) OnFileLockAcquired(args *FileLockAcquiredArgs) {
	slog.Debug("file lock acquired",
		"path", args.FilePath,
		"type", args.LockType.String())
}

func (LoggingHandler) OnFileLockFailed(args *FileLockFailedArgs) {
	slog.Warn("file lock failed", "path", args.FilePath, "reason", args.Reason)
}

func (LoggingHandler) OnChunkStarted(args *ChunkStartedArgs) {
	slog.Info("chunk started",
		"chunk", args.ChunkIndex+1,
		"total", args.TotalChunks,
		"sources", args.SourceCount)
}

func (LoggingHandler) OnChunkCompleted(args *ChunkCompletedArgs) {
	if args.Success {
		slog.Info("chunk completed",
			"chunk", args.ChunkIndex+1,
			"rules", args.RuleCount,
			"elapsed_ms", args.DurationMs)
		return
	}
	slog.Error("chunk failed",
		"chunk", args.ChunkIndex+1,
		"error", args.ErrorMessage)
}

func (LoggingHandler) OnChunksMerged(args *ChunksMergedArgs) {
	slog.Info("chunks merged",
		"chunks", args.ChunkCount,
		"rules", args.FinalRuleCount,
		"duplicates_removed", args.DuplicatesRemoved)
}

func (LoggingHandler) OnCompilationCompleted(args *CompilationCompletedArgs) {
	slog.Info("compilation completed",
		"rules", args.RuleCount,
		"elapsed_ms", args.DurationMs)
}

func (LoggingHandler) OnCompilationError(args *CompilationErrorArgs) {
	slog.Error("compilation error", "code", args.ErrorCode, "error", args.ErrorMessage)
}

func severityLevel(s Severity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// HashAuditHandler cross-checks loaded source files against a persistent
// hash database. In strict mode a changed file aborts the run at the next
// validation checkpoint; in permissive mode the new content is accepted and
// logged.
type HashAuditHandler struct {
	NoOpHandler

	db     *integrity.DB
	strict bool

	mismatches []string
}

// NewHashAuditHandler creates a strict audit handler backed by db.
func NewHashAuditHandler(db *integrity.DB) *HashAuditHandler {
	return &HashAuditHandler{db: db, strict: true}
}

// NewPermissiveHashAuditHandler creates an audit handler that records
// mismatches without aborting.
func NewPermissiveHashAuditHandler(db *integrity.DB) *HashAuditHandler {
	return &HashAuditHandler{db: db}
}

// OnSourceLoaded verifies a local source file against the audit database.
func (h *HashAuditHandler) OnSourceLoaded(args *SourceLoadedArgs) {
	if !args.Success || !args.IsLocalFile || args.SourceURL == "" {
		return
	}

	ok, err := h.db.VerifyAndUpdate(args.SourceURL, h.strict)
	if err != nil {
		if integrity.IsMismatch(err) {
			h.mismatches = append(h.mismatches, args.SourceURL)
			slog.Warn("source hash mismatch", "path", args.SourceURL)
			return
		}
		slog.Warn("hash audit failed", "path", args.SourceURL, "error", err)
		return
	}
	if !ok {
		// Permissive mode records the change and moves on.
		slog.Info("source content changed, hash updated", "path", args.SourceURL)
	}
}

// OnValidation surfaces accumulated mismatches. Strict mode raises them as
// critical findings, which forces an abort.
func (h *HashAuditHandler) OnValidation(args *ValidationArgs) {
	for _, path := range h.mismatches {
		msg := fmt.Sprintf("content hash changed since last verified: %s", path)
		if h.strict {
			args.AddCritical("HASH_MISMATCH", msg)
		} else {
			args.AddWarning("HASH_MISMATCH", msg)
		}
	}
	h.mismatches = nil
}
