// Command treecep detects patterns over timestamped event streams.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/treecep/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.GetExitCode(err))
}
