package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraInitialState is the camera a generator places for its scene.
type CameraInitialState struct {
	ModelView       mgl32.Mat4
	FieldOfView     float32
	Aperture        float32
	FocusDistance   float32
	ControlSpeed    float32
	GammaCorrection bool
	HasSky          bool
}

// Generator builds the host data of a scene and fills in its camera.
type Generator func(camera *CameraInitialState) ([]Model, []Texture, error)

// Registry maps scene names to generators, in registration order.
type Registry struct {
	names      []string
	generators map[string]Generator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]Generator)}
}

// Register adds a generator. Names must be unique.
func (r *Registry) Register(name string, gen Generator) error {
	if _, ok := r.generators[name]; ok {
		return fmt.Errorf("scene: %q already registered", name)
	}
	r.names = append(r.names, name)
	r.generators[name] = gen
	return nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered scenes.
func (r *Registry) Len() int { return len(r.names) }

// Lookup returns the generator registered under name.
func (r *Registry) Lookup(name string) (Generator, bool) {
	gen, ok := r.generators[name]
	return gen, ok
}

// At returns the name and generator at registration index i.
func (r *Registry) At(i int) (string, Generator, error) {
	if i < 0 || i >= len(r.names) {
		return "", nil, fmt.Errorf("scene: index %d out of range [0, %d)", i, len(r.names))
	}
	name := r.names[i]
	return name, r.generators[name], nil
}

// Index returns the registration index of name, or -1.
func (r *Registry) Index(name string) int {
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}

// DefaultRegistry returns a registry with the built-in scenes.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []struct {
		name string
		gen  Generator
	}{
		{"Cube And Spheres", CubeAndSpheres},
		{"Ray Tracing In One Weekend", RayTracingInOneWeekend},
		{"Planets", Planets},
		{"Cornell Box", CornellBox},
		{"Procedural Spheres", ProceduralSpheres},
	} {
		if err := r.Register(s.name, s.gen); err != nil {
			panic(err)
		}
	}
	return r
}
