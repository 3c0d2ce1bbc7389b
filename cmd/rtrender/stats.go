package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gogpu/raytrace"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// statisticsTable formats the statistics of a finished render.
func statisticsTable(st raytrace.Statistics, elapsed time.Duration) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Statistic", "Value"})

	rows := [][]string{
		{"Scene", st.Scene},
		{"Render mode", st.RenderMode.String()},
		{"Extent", fmt.Sprintf("%dx%d", st.Extent.Width, st.Extent.Height)},
		{"Models", printer.Sprintf("%d", st.Models)},
		{"Vertices", printer.Sprintf("%d", st.Vertices)},
		{"Indices", printer.Sprintf("%d", st.Indices)},
		{"Materials", printer.Sprintf("%d", st.Materials)},
		{"Textures", printer.Sprintf("%d", st.Textures)},
	}
	if st.RenderMode == raytrace.RenderModeRayTraced {
		rows = append(rows,
			[]string{"Bottom level structures", printer.Sprintf("%d", st.Accel.BottomLevelCount)},
			[]string{"Instances", printer.Sprintf("%d", st.Accel.InstanceCount)},
			[]string{"Structure memory", printer.Sprintf("%d bytes", st.Accel.BottomLevelBytes+st.Accel.TopLevelBytes)},
			[]string{"Scratch memory", printer.Sprintf("%d bytes", st.Accel.ScratchBytes)},
			[]string{"Build time", st.Accel.BuildTime.Round(time.Microsecond).String()},
			[]string{"Samples per pixel", printer.Sprintf("%d", st.TotalSamples)},
		)
	}
	rows = append(rows,
		[]string{"Frames", printer.Sprintf("%d", st.Frames)},
		[]string{"Swap chain rebuilds", printer.Sprintf("%d", st.Rebuilds)},
	)
	table.AppendBulk(rows)
	table.SetFooter([]string{"Render time", elapsed.Round(time.Millisecond).String()})
	table.Render()
	return buf.String()
}
