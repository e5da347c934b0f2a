// Command asyncload drives a Manager with synthetic work and exposes its
// Prometheus metrics, for tuning parallelism and deadlines.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "asyncload",
		Usage: "Generate synthetic load against an async manager",
		Commands: []*cli.Command{
			runCommand(),
			configCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
