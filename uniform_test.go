package raytrace

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

func TestNewUniformBufferObject(t *testing.T) {
	s := DefaultSettings()
	s.FieldOfView = 45
	modelView := mgl32.Translate3D(1, 2, 3)

	ubo := NewUniformBufferObject(modelView, &s, gputypes.NewExtent2D(200, 100), true)

	if ubo.Projection.At(1, 1) >= 0 {
		t.Errorf("projection[1][1] = %v, want negative", ubo.Projection.At(1, 1))
	}
	want := mgl32.Perspective(mgl32.DegToRad(45), 2, nearPlane, farPlane)
	if !mgl32.FloatEqual(ubo.Projection.At(0, 0), want.At(0, 0)) {
		t.Errorf("projection[0][0] = %v, want %v", ubo.Projection.At(0, 0), want.At(0, 0))
	}
	if !ubo.ModelViewInverse.ApproxEqual(mgl32.Translate3D(-1, -2, -3)) {
		t.Errorf("ModelViewInverse = %v", ubo.ModelViewInverse)
	}
	if ubo.ProjectionInverse.At(1, 1) >= 0 {
		t.Error("ProjectionInverse does not carry the vertical flip")
	}
	if ubo.NumberOfBounces != s.NumberOfBounces || ubo.Aperture != s.Aperture || !ubo.HasSky {
		t.Errorf("settings not copied: %+v", ubo)
	}
}

func TestUniformBufferObjectBytes(t *testing.T) {
	ubo := UniformBufferObject{
		ModelView:            mgl32.Translate3D(1, 2, 3),
		Projection:           mgl32.Ident4(),
		ModelViewInverse:     mgl32.Ident4(),
		ProjectionInverse:    mgl32.Ident4(),
		Aperture:             0.25,
		FocusDistance:        10,
		HeatmapScale:         1.5,
		TotalNumberOfSamples: 64,
		NumberOfSamples:      8,
		NumberOfBounces:      16,
		RandomSeed:           1,
		HasSky:               true,
		ShowHeatmap:          false,
	}
	b := ubo.Bytes()
	if len(b) != UniformBufferSize {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), UniformBufferSize)
	}

	word := func(off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
	float := func(off int) float32 { return math.Float32frombits(word(off)) }

	// Column-major: the translation is the fourth column.
	if float(48) != 1 || float(52) != 2 || float(56) != 3 {
		t.Errorf("model view translation = %v %v %v", float(48), float(52), float(56))
	}
	tests := []struct {
		name string
		off  int
		got  func(int) float32
		want float32
	}{
		{"aperture", 256, float, 0.25},
		{"focus distance", 260, float, 10},
		{"heatmap scale", 264, float, 1.5},
	}
	for _, tt := range tests {
		if got := tt.got(tt.off); got != tt.want {
			t.Errorf("%s at %d = %v, want %v", tt.name, tt.off, got, tt.want)
		}
	}
	words := []struct {
		name string
		off  int
		want uint32
	}{
		{"total samples", 268, 64},
		{"samples", 272, 8},
		{"bounces", 276, 16},
		{"random seed", 280, 1},
		{"has sky", 284, 1},
		{"show heatmap", 288, 0},
		{"padding", 300, 0},
	}
	for _, w := range words {
		if got := word(w.off); got != w.want {
			t.Errorf("%s at %d = %d, want %d", w.name, w.off, got, w.want)
		}
	}
}
