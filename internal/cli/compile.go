package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaypatrick/ad-blocking/internal/chunk"
	"github.com/jaypatrick/ad-blocking/internal/compiler"
	"github.com/jaypatrick/ad-blocking/internal/config"
	"github.com/jaypatrick/ad-blocking/internal/events"
	"github.com/jaypatrick/ad-blocking/internal/filelock"
	"github.com/jaypatrick/ad-blocking/internal/integrity"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output      string // output file path
	Chunk       bool   // split the job into chunks and compile in parallel
	ChunkSize   int    // rules per chunk for the line-count heuristic
	MaxParallel int    // concurrent compiler processes
	CopyToRules bool   // copy the output into the rules directory
	RulesDir    string // rules directory override
	NoLock      bool   // skip advisory locks on source files
	StrictLocks bool   // fail the run when a source cannot be locked
	AuditDB     string // integrity database path; empty disables auditing
	StrictAudit bool   // abort on hash mismatches instead of warning
}

// CompileReport is the success payload for the compile command.
type CompileReport struct {
	ConfigName        string  `json:"config_name"`
	Chunked           bool    `json:"chunked"`
	ChunkCount        int     `json:"chunk_count,omitempty"`
	RuleCount         int     `json:"rule_count"`
	DuplicatesRemoved int     `json:"duplicates_removed,omitempty"`
	ElapsedMs         int64   `json:"elapsed_ms"`
	Speedup           float64 `json:"speedup,omitempty"`
	OutputPath        string  `json:"output_path"`
	OutputHash        string  `json:"output_hash,omitempty"`
	RulesDestination  string  `json:"rules_destination,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}
	defaults := chunk.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "compile <config-file>",
		Short: "Compile a filter list configuration",
		Long: `Compile a filter list configuration with the AdGuard hostlist compiler.

Configurations may be JSON, YAML, or TOML. With --chunk the sources are
split across parallel compiler processes and the results are merged with
order-preserving deduplication.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().BoolVar(&opts.Chunk, "chunk", false, "split sources into parallel compilation chunks")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", defaults.ChunkSize, "target rules per chunk")
	cmd.Flags().IntVar(&opts.MaxParallel, "max-parallel", defaults.MaxParallel, "maximum concurrent compiler processes")
	cmd.Flags().BoolVar(&opts.CopyToRules, "copy-to-rules", false, "copy output into the rules directory")
	cmd.Flags().StringVar(&opts.RulesDir, "rules-dir", "", "rules directory (default <config dir>/rules)")
	cmd.Flags().BoolVar(&opts.NoLock, "no-lock", false, "skip advisory locks on source files")
	cmd.Flags().BoolVar(&opts.StrictLocks, "strict-locks", false, "fail when a source file cannot be locked")
	cmd.Flags().StringVar(&opts.AuditDB, "audit-db", "", "track source file hashes in this database")
	cmd.Flags().BoolVar(&opts.StrictAudit, "strict-audit", false, "abort on source hash mismatches")

	return cmd
}

func runCompile(opts *CompileOptions, configPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	if opts.Chunk {
		return runChunkedCompile(opts, configPath, cmd, formatter)
	}
	return runSingleCompile(opts, configPath, cmd, formatter)
}

// runSingleCompile hands the whole configuration to one compiler process.
func runSingleCompile(opts *CompileOptions, configPath string, cmd *cobra.Command, formatter *OutputFormatter) error {
	c := compiler.New()
	c.Debug = opts.Verbose

	result, err := c.Compile(cmd.Context(), configPath, compiler.Options{
		OutputPath:     opts.Output,
		CopyToRules:    opts.CopyToRules,
		RulesDirectory: opts.RulesDir,
	})
	if err != nil {
		return outputError(formatter, err)
	}
	if !result.Success {
		_ = formatter.Error(ErrCodeCompilerFailed, result.ErrorMessage, result.Stderr)
		return NewExitError(ExitFailure, result.ErrorMessage)
	}

	report := &CompileReport{
		ConfigName:       result.ConfigName,
		RuleCount:        result.RuleCount,
		ElapsedMs:        result.ElapsedMs,
		OutputPath:       result.OutputPath,
		OutputHash:       result.OutputHash,
		RulesDestination: result.RulesDestination,
	}
	return outputCompileSuccess(formatter, report, nil)
}

// runChunkedCompile drives the full chunked pipeline and writes the merged
// output itself.
func runChunkedCompile(opts *CompileOptions, configPath string, cmd *cobra.Command, formatter *OutputFormatter) error {
	cfg, err := config.Read(configPath)
	if err != nil {
		return outputError(formatter, err)
	}

	dispatcher := events.NewDispatcher()
	dispatcher.AddHandler(&events.LoggingHandler{})

	if opts.AuditDB != "" {
		db, err := integrity.Open(opts.AuditDB)
		if err != nil {
			_ = formatter.Error(ErrCodeAuditDB, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeAuditDB, err)
		}
		defer db.Close()
		if opts.StrictAudit {
			dispatcher.AddHandler(events.NewHashAuditHandler(db))
		} else {
			dispatcher.AddHandler(events.NewPermissiveHashAuditHandler(db))
		}
		formatter.VerboseLog("Auditing source hashes against %s", opts.AuditDB)
	}

	cc := &compiler.ChunkedCompiler{
		Dispatcher: dispatcher,
		Debug:      opts.Verbose,
	}
	if !opts.NoLock {
		cc.Locks = filelock.NewService()
	}
	if opts.StrictLocks {
		cc.Policy = compiler.LockStrict
	}

	chunkOpts := &chunk.Options{
		Enabled:     true,
		ChunkSize:   opts.ChunkSize,
		MaxParallel: opts.MaxParallel,
		Strategy:    chunk.StrategyBySource,
	}
	result, err := cc.Compile(cmd.Context(), cfg, chunkOpts)
	if err != nil {
		return outputError(formatter, err)
	}
	if !result.Success {
		details := strings.Join(result.Errors, "; ")
		_ = formatter.Error(ErrCodeChunkFailures,
			fmt.Sprintf("%d chunk error(s)", len(result.Errors)), details)
		return NewExitError(ExitFailure, details)
	}

	outputPath, err := writeMergedOutput(configPath, opts.Output, result.MergedRules)
	if err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, ErrCodeWriteFailed, err)
	}
	hash, err := integrity.HashFile(outputPath)
	if err != nil {
		return outputError(formatter, err)
	}

	report := &CompileReport{
		ConfigName:        cfg.Name,
		Chunked:           true,
		ChunkCount:        len(result.Chunks),
		RuleCount:         result.FinalRuleCount,
		DuplicatesRemoved: result.DuplicatesRemoved,
		ElapsedMs:         result.TotalElapsedMs,
		Speedup:           result.EstimatedSpeedup(),
		OutputPath:        outputPath,
		OutputHash:        hash,
	}

	if opts.CopyToRules {
		dest, err := deployToRules(outputPath, configPath, opts.RulesDir)
		if err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitFailure, ErrCodeWriteFailed, err)
		}
		report.RulesDestination = dest
	}

	return outputCompileSuccess(formatter, report, result.Chunks)
}

// writeMergedOutput writes merged rules to the requested path, or to a
// timestamped file under the configuration's output directory.
func writeMergedOutput(configPath, outputPath string, rules []string) (string, error) {
	if outputPath == "" {
		absConfig, err := filepath.Abs(configPath)
		if err != nil {
			return "", err
		}
		outputDir := filepath.Join(filepath.Dir(absConfig), "output")
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return "", err
		}
		outputPath = filepath.Join(outputDir,
			fmt.Sprintf("compiled-%s.txt", time.Now().UTC().Format("20060102-150405")))
	}

	content := ""
	if len(rules) > 0 {
		content = strings.Join(rules, "\n") + "\n"
	}
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return "", err
	}
	return outputPath, nil
}

// deployToRules copies the compiled output into the rules directory under
// the well-known filter file name.
func deployToRules(outputPath, configPath, rulesDir string) (string, error) {
	if rulesDir == "" {
		absConfig, err := filepath.Abs(configPath)
		if err != nil {
			return "", err
		}
		rulesDir = filepath.Join(filepath.Dir(absConfig), "rules")
	}
	if err := os.MkdirAll(rulesDir, 0755); err != nil {
		return "", err
	}

	in, err := os.Open(outputPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dest := filepath.Join(rulesDir, compiler.RulesFileName)
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	return dest, out.Close()
}

// outputCompileSuccess outputs a successful compilation report.
func outputCompileSuccess(formatter *OutputFormatter, report *CompileReport, chunks []chunk.Metadata) error {
	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	// Human-readable text output
	if report.Chunked {
		fmt.Fprintf(formatter.Writer, "✓ Compiled %q: %d rule(s) from %d chunk(s), %d duplicate(s) removed\n",
			report.ConfigName, report.RuleCount, report.ChunkCount, report.DuplicatesRemoved)
		if report.Speedup > 1.0 {
			fmt.Fprintf(formatter.Writer, "  Speedup: %.2fx over sequential compilation\n", report.Speedup)
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✓ Compiled %q: %d rule(s)\n",
			report.ConfigName, report.RuleCount)
	}
	fmt.Fprintf(formatter.Writer, "  Output: %s\n", report.OutputPath)
	if report.RulesDestination != "" {
		fmt.Fprintf(formatter.Writer, "  Deployed: %s\n", report.RulesDestination)
	}

	if formatter.Verbose {
		for _, meta := range chunks {
			status := "ok"
			if !meta.Executed {
				status = "skipped"
			} else if !meta.Success {
				status = "failed"
			}
			fmt.Fprintf(formatter.Writer, "  chunk %d/%d: %d source(s), %d rule(s), %dms [%s]\n",
				meta.Index+1, meta.Total, len(meta.Sources), meta.ActualRules, meta.ElapsedMs, status)
		}
	}

	return nil
}
