package cli

import (
	"errors"

	"github.com/jaypatrick/ad-blocking/internal/chunk"
	"github.com/jaypatrick/ad-blocking/internal/compiler"
	"github.com/jaypatrick/ad-blocking/internal/config"
)

// Error codes used in CLI output.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNotFound      = "E002" // Configuration file not found
	ErrCodeInvalidConfig = "E003" // Configuration failed to parse or validate
	ErrCodeUnknownFormat = "E004" // Configuration extension not recognized
	ErrCodeWriteFailed   = "E005" // Output file write error

	ErrCodeCompilerNotFound = "E101" // External compiler not installed
	ErrCodeCompilerFailed   = "E102" // Compiler process exited non-zero
	ErrCodeChunkFailures    = "E103" // One or more chunks failed

	ErrCodeCancelled  = "E201" // Run cancelled by a handler
	ErrCodeAborted    = "E202" // Run aborted at a validation checkpoint
	ErrCodeLockFailed = "E203" // Source file lock unavailable under strict policy

	ErrCodeHashMismatch = "E301" // Tracked file content changed
	ErrCodeAuditDB      = "E302" // Integrity database error
)

// classifyError maps pipeline, config, and resolution errors to CLI error
// codes. Unrecognized errors map to ErrCodeGeneric.
func classifyError(err error) string {
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case config.ErrCodeConfigNotFound:
			return ErrCodeNotFound
		case config.ErrCodeUnknownExtension:
			return ErrCodeUnknownFormat
		default:
			return ErrCodeInvalidConfig
		}
	}

	var notFound *chunk.CompilerNotFoundError
	if errors.As(err, &notFound) {
		return ErrCodeCompilerNotFound
	}

	var pipeErr *compiler.PipelineError
	if errors.As(err, &pipeErr) {
		switch pipeErr.Code {
		case compiler.ErrCodeCancelled:
			return ErrCodeCancelled
		case compiler.ErrCodeAborted:
			return ErrCodeAborted
		case compiler.ErrCodeLockFailed:
			return ErrCodeLockFailed
		}
	}

	return ErrCodeGeneric
}

// exitCodeFor maps CLI error codes to process exit codes. Setup problems are
// command errors; failed runs are plain failures.
func exitCodeFor(code string) int {
	switch code {
	case ErrCodeNotFound, ErrCodeInvalidConfig, ErrCodeUnknownFormat,
		ErrCodeCompilerNotFound, ErrCodeAuditDB:
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// outputError reports err through the formatter and returns a matching
// ExitError.
func outputError(formatter *OutputFormatter, err error) error {
	code := classifyError(err)
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(exitCodeFor(code), code, err)
}
