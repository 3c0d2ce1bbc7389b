package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gogpu/raytrace"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli"
)

func initConfig(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("missing settings file argument")
	}
	path := ctx.Args().First()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	settings := raytrace.DefaultSettings()
	if err := settings.Save(path); err != nil {
		return err
	}
	fmt.Printf("default settings written to %s\n", path)
	return nil
}

func checkConfig(ctx *cli.Context) error {
	setupLogging(ctx)
	if ctx.NArg() != 1 {
		return errors.New("missing settings file argument")
	}
	settings, err := raytrace.LoadSettings(ctx.Args().First())
	if err != nil {
		return err
	}
	data, err := toml.Marshal(settings)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
