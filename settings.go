package raytrace

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Field of view bounds, in degrees.
const (
	MinFieldOfView = 10
	MaxFieldOfView = 90
)

// Settings are the user-facing render parameters. They are saved as TOML.
type Settings struct {
	// Scene is the registered name of the scene to render.
	Scene string `toml:"scene"`

	RenderMode RenderMode `toml:"render_mode"`

	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`

	AccumulateRays     bool   `toml:"accumulate_rays"`
	NumberOfSamples    uint32 `toml:"samples"`
	NumberOfBounces    uint32 `toml:"bounces"`
	MaxNumberOfSamples uint32 `toml:"max_samples"`

	// Camera parameters. Loading a scene replaces them with the scene's camera.
	FieldOfView   float32 `toml:"field_of_view"`
	Aperture      float32 `toml:"aperture"`
	FocusDistance float32 `toml:"focus_distance"`

	ShowHeatmap  bool    `toml:"show_heatmap"`
	HeatmapScale float32 `toml:"heatmap_scale"`

	// ShaderDir holds the compiled ray-tracing shaders.
	ShaderDir string `toml:"shader_dir"`

	// Backend is the hal backend name; empty selects the highest priority one.
	Backend    string `toml:"backend"`
	Adapter    int    `toml:"adapter"`
	Validation bool   `toml:"validation"`

	// Frames is the number of frames a headless render presents.
	Frames int `toml:"frames"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() Settings {
	return Settings{
		Scene:              "Ray Tracing In One Weekend",
		RenderMode:         RenderModeRayTraced,
		Width:              1280,
		Height:             720,
		AccumulateRays:     true,
		NumberOfSamples:    8,
		NumberOfBounces:    16,
		MaxNumberOfSamples: 64 * 1024,
		FieldOfView:        20,
		Aperture:           0.1,
		FocusDistance:      10,
		HeatmapScale:       1.5,
		ShaderDir:          "shader/spv",
		Adapter:            -1,
		Frames:             64,
	}
}

// LoadSettings reads a TOML file on top of DefaultSettings and validates it.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("raytrace: settings: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return s, fmt.Errorf("raytrace: settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Save writes s to path as TOML.
func (s *Settings) Save(path string) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("raytrace: settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports the first out-of-range field.
func (s *Settings) Validate() error {
	switch {
	case s.Scene == "":
		return fmt.Errorf("%w: no scene", ErrInvalidSettings)
	case s.RenderMode != RenderModeRayTraced && s.RenderMode != RenderModeRasterized:
		return fmt.Errorf("%w: render mode %d", ErrInvalidSettings, int(s.RenderMode))
	case s.Width == 0 || s.Height == 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidSettings, s.Width, s.Height)
	case s.NumberOfSamples == 0:
		return fmt.Errorf("%w: samples must be positive", ErrInvalidSettings)
	case s.NumberOfBounces == 0:
		return fmt.Errorf("%w: bounces must be positive", ErrInvalidSettings)
	case s.FieldOfView < MinFieldOfView || s.FieldOfView > MaxFieldOfView:
		return fmt.Errorf("%w: field of view %v outside [%d, %d]",
			ErrInvalidSettings, s.FieldOfView, MinFieldOfView, MaxFieldOfView)
	case s.Aperture < 0:
		return fmt.Errorf("%w: negative aperture", ErrInvalidSettings)
	case s.FocusDistance <= 0:
		return fmt.Errorf("%w: focus distance must be positive", ErrInvalidSettings)
	case s.HeatmapScale <= 0:
		return fmt.Errorf("%w: heatmap scale must be positive", ErrInvalidSettings)
	case s.Frames < 0:
		return fmt.Errorf("%w: negative frame count", ErrInvalidSettings)
	}
	return nil
}

// RequireAccumulationReset reports whether changing from prev to s
// invalidates the accumulated samples.
func (s *Settings) RequireAccumulationReset(prev *Settings) bool {
	return s.RenderMode != prev.RenderMode ||
		s.AccumulateRays != prev.AccumulateRays ||
		s.NumberOfBounces != prev.NumberOfBounces ||
		s.FieldOfView != prev.FieldOfView ||
		s.Aperture != prev.Aperture ||
		s.FocusDistance != prev.FocusDistance
}
