// Command shadowai classifies vendor web-access logs for unsanctioned
// generative-AI usage: ingest, canonicalize, sign, select risk candidates,
// classify by rule and LLM, and seal an evidence bundle.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/shadowai/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
