package scene

import (
	"slices"
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	want := []string{
		"Cube And Spheres",
		"Ray Tracing In One Weekend",
		"Planets",
		"Cornell Box",
		"Procedural Spheres",
	}
	if got := r.Names(); !slices.Equal(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}

	for i, name := range want {
		t.Run(name, func(t *testing.T) {
			if r.Index(name) != i {
				t.Errorf("Index(%q) = %d, want %d", name, r.Index(name), i)
			}
			gotName, gen, err := r.At(i)
			if err != nil || gotName != name {
				t.Fatalf("At(%d) = %q, %v", i, gotName, err)
			}

			var camera CameraInitialState
			models, textures, err := gen(&camera)
			if err != nil {
				t.Fatalf("generator error = %v", err)
			}
			if len(models) == 0 {
				t.Fatal("generator returned no models")
			}
			if camera.FieldOfView <= 0 {
				t.Errorf("camera field of view = %v", camera.FieldOfView)
			}
			for mi, m := range models {
				for _, mat := range m.Materials {
					if mat.DiffuseTextureID >= int32(len(textures)) {
						t.Errorf("model %d references texture %d of %d", mi, mat.DiffuseTextureID, len(textures))
					}
				}
			}
		})
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	gen := func(*CameraInitialState) ([]Model, []Texture, error) { return nil, nil, nil }
	if err := r.Register("a", gen); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("a", gen); err == nil {
		t.Error("duplicate Register() succeeded")
	}
	if _, ok := r.Lookup("a"); !ok {
		t.Error("Lookup(a) not found")
	}
	if _, ok := r.Lookup("b"); ok {
		t.Error("Lookup(b) found")
	}
	if r.Index("b") != -1 {
		t.Errorf("Index(b) = %d, want -1", r.Index("b"))
	}
	if _, _, err := r.At(1); err == nil {
		t.Error("At(1) succeeded on a single-entry registry")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestOneWeekendDeterministic(t *testing.T) {
	a, b := oneWeekendSpheres(), oneWeekendSpheres()
	if len(a) != len(b) {
		t.Fatalf("sphere counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if *a[i].Procedural != *b[i].Procedural {
			t.Fatalf("sphere %d differs between runs", i)
		}
	}
}
