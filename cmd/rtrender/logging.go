package main

import (
	"log/slog"
	"os"

	"github.com/gogpu/raytrace"
	"github.com/urfave/cli"
)

func setupLogging(ctx *cli.Context) {
	level, ok := logLevel(ctx.GlobalBool("v"), ctx.GlobalBool("vv"))
	if !ok {
		return
	}
	raytrace.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// logLevel maps the verbosity flags to a level. Without either flag logging
// stays disabled.
func logLevel(verbose, veryVerbose bool) (slog.Level, bool) {
	switch {
	case veryVerbose:
		return slog.LevelDebug, true
	case verbose:
		return slog.LevelInfo, true
	default:
		return slog.LevelWarn, false
	}
}
