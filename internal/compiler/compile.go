// Package compiler drives the external hostlist compiler: single-shot
// compilation of one configuration, and chunked orchestration of large jobs
// through the event pipeline.
package compiler

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
	"time"

	"github.com/google/uuid"

	"github.com/jaypatrick/ad-blocking/internal/chunk"
	"github.com/jaypatrick/ad-blocking/internal/config"
	"github.com/jaypatrick/ad-blocking/internal/integrity"
)

// RulesFileName is the well-known destination name when output is copied
// into a rules directory.
const RulesFileName = "adguard_user_filter.txt"

// Options controls a single-shot compilation.
type Options struct {
	// OutputPath is where the compiled list is written. Empty selects
	// <config dir>/output/compiled-<timestamp>.txt.
	OutputPath string

	// CopyToRules copies the output into RulesDirectory after compilation.
	CopyToRules bool

	// RulesDirectory overrides the rules destination. Empty selects
	// <config dir>/rules.
	RulesDirectory string

	// Format overrides configuration format detection.
	Format config.Format
}

// Result reports the outcome of a single-shot compilation.
// A failed compiler run is reported here, not as a Go error: errors are
// reserved for problems preparing the run.
type Result struct {
	Success       bool
	ConfigName    string
	ConfigVersion string
	RuleCount     int
	OutputPath    string

	// OutputHash is the SHA-384 hash of the output file.
	OutputHash string

	CopiedToRules    bool
	RulesDestination string

	ElapsedMs int64
	StartTime time.Time
	EndTime   time.Time

	ErrorMessage string
	Stdout       string
	Stderr       string
}

// Compiler runs single-shot compilations.
type Compiler struct {
	// Debug echoes compiler invocations to the log.
	Debug bool

	// Resolve overrides compiler resolution. Defaults to chunk.ResolveCommand.
	Resolve chunk.Resolver
}

// New creates a Compiler with default settings.
func New() *Compiler {
	return &Compiler{}
}

// Compile runs the external compiler over one configuration file.
//
// Configurations in YAML or TOML are converted to a temporary JSON file
// first, since the external compiler only accepts JSON. The compiler process
// runs in the configuration's directory so relative source paths resolve.
func (c *Compiler) Compile(ctx context.Context, configPath string, opts Options) (*Result, error) {
	start := time.Now()
	result := &Result{StartTime: time.Now().UTC()}

	finish := func() *Result {
		result.EndTime = time.Now().UTC()
		result.ElapsedMs = time.Since(start).Milliseconds()
		return result
	}

	absConfig, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	configDir := filepath.Dir(absConfig)

	cfg, err := config.ReadAs(absConfig, opts.Format)
	if err != nil {
		return nil, err
	}
	result.ConfigName = cfg.Name
	result.ConfigVersion = cfg.Version

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputDir := filepath.Join(configDir, "output")
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
		outputPath = filepath.Join(outputDir,
			fmt.Sprintf("compiled-%s.txt", time.Now().UTC().Format("20060102-150405")))
	}
	result.OutputPath = outputPath

	// The external compiler only accepts JSON.
	compileConfigPath := absConfig
	if cfg.SourceFormat() != config.FormatJSON {
		data, err := cfg.ToJSON()
		if err != nil {
			return nil, err
		}
		tempPath := filepath.Join(os.TempDir(),
			fmt.Sprintf("compiler-config-%s.json", uuid.NewString()))
		if err := os.WriteFile(tempPath, data, 0644); err != nil {
			return nil, fmt.Errorf("writing temp JSON config: %w", err)
		}
		defer os.Remove(tempPath)
		compileConfigPath = tempPath
		slog.Debug("converted configuration to JSON",
			"from", cfg.SourceFormat().String(),
			"temp", tempPath)
	}

	resolve := c.Resolve
	if resolve == nil {
		resolve = chunk.ResolveCommand
	}
	cmd, err := resolve()
	if err != nil {
		return nil, err
	}

	args := cmd.Args(compileConfigPath, outputPath)
	if c.Debug {
		slog.Debug("running compiler", "cmd", cmd.Path, "args", strings.Join(args, " "))
	}

	proc := exec.CommandContext(ctx, cmd.Path, args...)
	proc.Dir = configDir
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	runErr := proc.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("starting compiler process: %w", runErr)
		}
		result.ErrorMessage = fmt.Sprintf("compiler exited with %v: %s",
			runErr, strings.TrimSpace(result.Stderr))
		return finish(), nil
	}

	if _, err := os.Stat(outputPath); err != nil {
		result.ErrorMessage = "compilation completed but output file was not created"
		return finish(), nil
	}

	result.RuleCount = CountRules(outputPath)
	hash, err := integrity.HashFile(outputPath)
	if err != nil {
		return nil, err
	}
	result.OutputHash = hash
	result.Success = true

	if opts.CopyToRules {
		rulesDir := opts.RulesDirectory
		if rulesDir == "" {
			rulesDir = filepath.Join(configDir, "rules")
		}
		if err := os.MkdirAll(rulesDir, 0755); err != nil {
			return nil, fmt.Errorf("creating rules directory: %w", err)
		}
		dest := filepath.Join(rulesDir, RulesFileName)
		if err := copyFile(outputPath, dest); err != nil {
			return nil, fmt.Errorf("copying output to rules directory: %w", err)
		}
		result.CopiedToRules = true
		result.RulesDestination = dest
		slog.Info("copied output to rules directory", "dest", dest)
	}

	slog.Info("compilation complete",
		"name", result.ConfigName,
		"rules", result.RuleCount,
		"output", result.OutputPath)

	return finish(), nil
}

// CountRules counts the rule lines in a compiled output file: lines that are
// non-empty after trimming and do not start with '!' or '#'. Returns 0 when
// the file cannot be read.
func CountRules(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		trimmed := strings.TrimSpace(scanner.Text())
		if trimmed == "" || strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		count++
	}
	return count
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
