// Command xqflow routes and transforms XML messages with XQuery.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/xqflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xqflow:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
