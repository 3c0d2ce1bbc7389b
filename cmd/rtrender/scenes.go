package main

import (
	"bytes"
	"fmt"

	"github.com/gogpu/raytrace/scene"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

func listScenes(ctx *cli.Context) error {
	setupLogging(ctx)
	table, err := scenesTable(scene.DefaultRegistry())
	if err != nil {
		return err
	}
	fmt.Print(table)
	return nil
}

// scenesTable runs every generator of r on the host and tabulates the
// resulting geometry.
func scenesTable(r *scene.Registry) (string, error) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"#", "Scene", "Models", "Procedural", "Vertices", "Textures", "Field of view"})

	for i := 0; i < r.Len(); i++ {
		name, gen, err := r.At(i)
		if err != nil {
			return "", err
		}
		var camera scene.CameraInitialState
		models, textures, err := gen(&camera)
		if err != nil {
			return "", fmt.Errorf("scene %q: %w", name, err)
		}
		vertices, procedural := 0, 0
		for _, m := range models {
			vertices += len(m.Vertices)
			if m.Procedural != nil {
				procedural++
			}
		}
		table.Append([]string{
			fmt.Sprintf("%d", i),
			name,
			printer.Sprintf("%d", len(models)),
			printer.Sprintf("%d", procedural),
			printer.Sprintf("%d", vertices),
			fmt.Sprintf("%d", len(textures)),
			fmt.Sprintf("%.0f°", camera.FieldOfView),
		})
	}
	table.Render()
	return buf.String(), nil
}
