// Command qinfer resolves query references against a CUE entity model and
// plans the joins their association paths need.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/qinfer/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands write their own error output; only unhandled errors are printed.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
