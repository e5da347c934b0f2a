package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	asyncmanager "github.com/Swind/go-async-manager"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the configuration resolved from the environment",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "env-file",
				Aliases: []string{"e"},
				Usage:   "Load variables from `FILE` before reading the environment",
			},
		},
		Action: configAction,
	}
}

func configAction(c *cli.Context) error {
	cfg, err := asyncmanager.LoadConfig(c.StringSlice("env-file")...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
