package raytrace

import (
	"context"
	"fmt"
	"strings"

	"github.com/gogpu/raytrace/frame"
)

// RenderMode selects how frames are produced.
type RenderMode int

const (
	// RenderModeRayTraced traces rays through the scene's acceleration structures.
	RenderModeRayTraced RenderMode = iota

	// RenderModeRasterized is the fallback without ray tracing. It paints the
	// sky background of the scene with a compute shader.
	RenderModeRasterized
)

// String returns the mode name accepted by ParseRenderMode.
func (m RenderMode) String() string {
	switch m {
	case RenderModeRayTraced:
		return "raytraced"
	case RenderModeRasterized:
		return "raster"
	default:
		return "unknown"
	}
}

// ParseRenderMode parses "raytraced" or "raster", ignoring case.
func ParseRenderMode(s string) (RenderMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raytraced", "raytracing", "rt":
		return RenderModeRayTraced, nil
	case "raster", "rasterized":
		return RenderModeRasterized, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRenderMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m RenderMode) MarshalText() ([]byte, error) {
	if m != RenderModeRayTraced && m != RenderModeRasterized {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRenderMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *RenderMode) UnmarshalText(text []byte) error {
	mode, err := ParseRenderMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// renderStrategy produces frames for one render mode. It is a frame.Renderer
// that also owns the scene-dependent state of its mode.
type renderStrategy interface {
	frame.Renderer

	// Mode returns the mode the strategy implements.
	Mode() RenderMode

	// LoadScene prepares the scene-dependent resources of the strategy.
	LoadScene(ctx context.Context, s *loadedScene) error

	// UnloadScene releases what LoadScene created. The device is idle.
	UnloadScene()

	// Destroy releases what the strategy created at construction.
	Destroy()
}

// newRenderStrategy returns the strategy of mode.
func newRenderStrategy(mode RenderMode, a *Application) (renderStrategy, error) {
	switch mode {
	case RenderModeRayTraced:
		s, err := newRayTracedStrategy(a)
		if err != nil {
			return nil, err
		}
		return s, nil
	case RenderModeRasterized:
		s, err := newSkyStrategy(a)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownRenderMode, int(mode))
	}
}
