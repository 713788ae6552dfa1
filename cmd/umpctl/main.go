// umpctl operates a local UMP lookup index.
package main

import (
	"fmt"
	"os"

	"github.com/bsv-blockchain/ump-services/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
