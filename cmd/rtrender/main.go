// Command rtrender renders the built-in scenes headlessly and writes the
// result as a PNG image.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	_ "github.com/gogpu/raytrace/hal/noop"
	_ "github.com/gogpu/raytrace/hal/vulkan"
)

func main() {
	app := cli.NewApp()
	app.Name = "rtrender"
	app.Usage = "render scenes with hardware ray tracing"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a scene into a PNG file",
			Description: `
Load a scene from the built-in registry, build its acceleration structures,
trace the configured number of frames and save the last presented frame.

Flags override the values read from --config.`,
			Flags:  renderFlags,
			Action: renderScene,
		},
		{
			Name:   "scenes",
			Usage:  "list the built-in scenes",
			Action: listScenes,
		},
		{
			Name:   "devices",
			Usage:  "list the adapters of every registered backend",
			Action: listDevices,
		},
		{
			Name:  "config",
			Usage: "manage settings files",
			Subcommands: []cli.Command{
				{
					Name:      "init",
					Usage:     "write the default settings",
					ArgsUsage: "settings.toml",
					Action:    initConfig,
				},
				{
					Name:      "check",
					Usage:     "validate a settings file and print the effective settings",
					ArgsUsage: "settings.toml",
					Action:    checkConfig,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rtrender: %v\n", err)
		os.Exit(1)
	}
}
