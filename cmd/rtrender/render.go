package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/raytrace/scene"
	"github.com/urfave/cli"
	"golang.org/x/image/draw"
)

var renderFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Usage: "settings file; flags override its values",
	},
	cli.StringFlag{
		Name:  "scene, s",
		Usage: "scene name (see the scenes command)",
	},
	cli.StringFlag{
		Name:  "mode",
		Usage: "render mode: raytraced or raster",
	},
	cli.IntFlag{
		Name:  "width",
		Usage: "frame width",
	},
	cli.IntFlag{
		Name:  "height",
		Usage: "frame height",
	},
	cli.IntFlag{
		Name:  "spp",
		Usage: "samples per pixel and frame",
	},
	cli.IntFlag{
		Name:  "bounces",
		Usage: "maximum ray bounces",
	},
	cli.IntFlag{
		Name:  "max-samples",
		Usage: "stop accumulating after this many samples per pixel (0 = unlimited)",
	},
	cli.IntFlag{
		Name:  "frames",
		Usage: "number of frames to present",
	},
	cli.IntFlag{
		Name:  "scale",
		Value: 1,
		Usage: "supersampling factor; the frame is rendered scale times larger and downsampled",
	},
	cli.StringFlag{
		Name:  "backend",
		Usage: "hal backend (vulkan, noop); empty picks the first available",
	},
	cli.IntFlag{
		Name:  "adapter",
		Value: -1,
		Usage: "adapter index (see the devices command); -1 picks a ray tracing adapter",
	},
	cli.BoolFlag{
		Name:  "validation",
		Usage: "enable API validation layers",
	},
	cli.StringFlag{
		Name:  "shaders",
		Usage: "directory with the compiled ray tracing shaders",
	},
	cli.StringFlag{
		Name:  "out, o",
		Value: "frame.png",
		Usage: "image filename for the rendered frame",
	},
}

// renderSettings builds the settings of a render from the config file and
// the flags that were set explicitly.
func renderSettings(ctx *cli.Context) (raytrace.Settings, error) {
	settings := raytrace.DefaultSettings()
	if path := ctx.String("config"); path != "" {
		s, err := raytrace.LoadSettings(path)
		if err != nil {
			return settings, err
		}
		settings = s
	}

	if ctx.IsSet("scene") {
		settings.Scene = ctx.String("scene")
	}
	if ctx.IsSet("mode") {
		mode, err := raytrace.ParseRenderMode(ctx.String("mode"))
		if err != nil {
			return settings, err
		}
		settings.RenderMode = mode
	}
	if ctx.IsSet("width") {
		settings.Width = uint32(ctx.Int("width"))
	}
	if ctx.IsSet("height") {
		settings.Height = uint32(ctx.Int("height"))
	}
	if ctx.IsSet("spp") {
		settings.NumberOfSamples = uint32(ctx.Int("spp"))
	}
	if ctx.IsSet("bounces") {
		settings.NumberOfBounces = uint32(ctx.Int("bounces"))
	}
	if ctx.IsSet("max-samples") {
		settings.MaxNumberOfSamples = uint32(ctx.Int("max-samples"))
	}
	if ctx.IsSet("frames") {
		settings.Frames = ctx.Int("frames")
	}
	if ctx.IsSet("backend") {
		settings.Backend = ctx.String("backend")
	}
	if ctx.IsSet("adapter") {
		settings.Adapter = ctx.Int("adapter")
	}
	if ctx.IsSet("validation") {
		settings.Validation = ctx.Bool("validation")
	}
	if ctx.IsSet("shaders") {
		settings.ShaderDir = ctx.String("shaders")
	}
	return settings, settings.Validate()
}

func openBackend(name string) (hal.Backend, error) {
	if name == "" {
		return hal.Default()
	}
	return hal.Get(name)
}

// Render a still frame.
func renderScene(ctx *cli.Context) error {
	setupLogging(ctx)

	settings, err := renderSettings(ctx)
	if err != nil {
		return err
	}
	scale := ctx.Int("scale")
	if scale < 1 {
		return fmt.Errorf("invalid scale %d", scale)
	}
	outWidth, outHeight := int(settings.Width), int(settings.Height)
	settings.Width *= uint32(scale)
	settings.Height *= uint32(scale)

	backend, err := openBackend(settings.Backend)
	if err != nil {
		return err
	}
	device, err := backend.OpenDevice(hal.DeviceOptions{
		AdapterIndex:      settings.Adapter,
		RequireRayTracing: settings.RenderMode == raytrace.RenderModeRayTraced,
		Validation:        settings.Validation,
	})
	if err != nil {
		return err
	}
	defer device.Destroy()
	raytrace.Logger().Info("rtrender: device opened", "backend", backend.Name(), "device", device.Info().Name)

	swapChain, err := hal.NewOffscreenSwapChain(device, hal.OffscreenDescriptor{
		Width:      settings.Width,
		Height:     settings.Height,
		ImageCount: 3,
	})
	if err != nil {
		return err
	}
	defer swapChain.Destroy()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := raytrace.NewApplication(runCtx, device, swapChain, scene.DefaultRegistry(), settings)
	if err != nil {
		return err
	}
	defer app.Destroy()

	start := time.Now()
	err = app.Run(runCtx, settings.Frames)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	frame := swapChain.LastFrame()
	if frame == nil {
		return errors.New("no frame was presented")
	}
	if scale > 1 {
		frame = downsample(frame, outWidth, outHeight)
	}
	out := ctx.String("out")
	if err := savePNG(out, frame); err != nil {
		return err
	}

	fmt.Print(statisticsTable(app.Statistics(), elapsed))
	fmt.Printf("frame saved to %s (%dx%d)\n", out, frame.Bounds().Dx(), frame.Bounds().Dy())
	return nil
}

// downsample scales src to width x height with a Catmull-Rom filter.
func downsample(src *image.RGBA, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
