// Command livestore validates catalogs, runs scenarios, inspects recorded
// traces and serves catalogs over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/livestore/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "livestore:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
