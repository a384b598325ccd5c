package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaypatrick/ad-blocking/internal/compiler"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Show module and toolchain versions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(rootOpts, cmd)
		},
	}
}

func runVersion(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	info := compiler.GetVersionInfo()

	if formatter.Format == "json" {
		return formatter.Success(info)
	}

	fmt.Fprintf(formatter.Writer, "rulec %s\n", info.ModuleVersion)
	fmt.Fprintf(formatter.Writer, "  go: %s\n", info.GoVersion)
	fmt.Fprintf(formatter.Writer, "  platform: %s/%s\n",
		info.Platform.OSName, info.Platform.Architecture)
	if info.NodeVersion != "" {
		fmt.Fprintf(formatter.Writer, "  node: %s\n", info.NodeVersion)
	}
	if info.HostlistCompilerPath != "" {
		fmt.Fprintf(formatter.Writer, "  hostlist-compiler: %s (%s)\n",
			info.HostlistCompilerVersion, info.HostlistCompilerPath)
	} else {
		fmt.Fprintln(formatter.Writer, "  hostlist-compiler: not installed")
	}
	return nil
}
