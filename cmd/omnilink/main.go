// Command omnilink matches text commands against templates and
// dispatches them to the chess board and its adapters.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/omnilink/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "omnilink:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
