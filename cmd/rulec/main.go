package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jaypatrick/ad-blocking/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Command errors already printed through their formatter; only
		// cobra-level errors (bad flags, unknown commands) reach here raw.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
