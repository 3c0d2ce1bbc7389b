package main

import (
	"bytes"
	"fmt"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/hal"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

func listDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Backend", "#", "Adapter", "Type", "Driver", "API", "Ray tracing"})

	for _, name := range hal.Available() {
		backend, err := hal.Get(name)
		if err != nil {
			return err
		}
		adapters, err := backend.Adapters()
		if err != nil {
			raytrace.Logger().Warn("rtrender: backend unavailable", "backend", name, "error", err)
			continue
		}
		table.AppendBulk(adapterRows(name, adapters))
	}
	table.Render()
	fmt.Print(buf.String())
	return nil
}

func adapterRows(backend string, adapters []hal.AdapterInfo) [][]string {
	rows := make([][]string, len(adapters))
	for i, a := range adapters {
		rows[i] = []string{
			backend,
			fmt.Sprintf("%d", i),
			a.Name,
			a.Type.String(),
			a.Driver,
			a.APIVersion,
			fmt.Sprintf("%t", a.RayTracing),
		}
	}
	return rows
}
