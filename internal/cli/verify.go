package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaypatrick/ad-blocking/internal/integrity"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	AuditDB string // integrity database path
	Strict  bool   // report mismatches without updating stored hashes
}

// VerifyReport is the success payload for the verify command.
type VerifyReport struct {
	Verified   []string `json:"verified,omitempty"`
	Mismatched []string `json:"mismatched,omitempty"`
	Failed     []string `json:"failed,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <file>...",
		Short: "Verify file hashes against the integrity database",
		Long: `Verify that files still match the hashes recorded in the integrity
database. Untracked files are recorded on first sight. In strict mode a
mismatch leaves the stored hash untouched; otherwise the new content is
accepted and recorded.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.AuditDB, "audit-db", "integrity.db", "integrity database path")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "keep stored hashes on mismatch")

	return cmd
}

func runVerify(opts *VerifyOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	db, err := integrity.Open(opts.AuditDB)
	if err != nil {
		_ = formatter.Error(ErrCodeAuditDB, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeAuditDB, err)
	}
	defer db.Close()

	report := &VerifyReport{}
	for _, path := range paths {
		ok, err := db.VerifyAndUpdate(path, opts.Strict)
		switch {
		case err != nil && integrity.IsMismatch(err):
			report.Mismatched = append(report.Mismatched, path)
		case err != nil:
			report.Failed = append(report.Failed, fmt.Sprintf("%s: %v", path, err))
		case !ok:
			report.Mismatched = append(report.Mismatched, path)
		default:
			report.Verified = append(report.Verified, path)
		}
	}

	if len(report.Mismatched) > 0 || len(report.Failed) > 0 {
		_ = formatter.Error(ErrCodeHashMismatch,
			fmt.Sprintf("%d of %d file(s) failed verification",
				len(report.Mismatched)+len(report.Failed), len(paths)),
			report)
		return NewExitError(ExitFailure, "verification failed")
	}

	if formatter.Format == "json" {
		return formatter.Success(report)
	}
	fmt.Fprintf(formatter.Writer, "✓ Verified %d file(s)\n", len(report.Verified))
	return nil
}
