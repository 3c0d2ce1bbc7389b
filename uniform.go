package raytrace

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

// UniformBufferSize is the std140 size of UniformBufferObject.
const UniformBufferSize = 304

// Clip planes of the camera projection.
const (
	nearPlane = 0.1
	farPlane  = 10000
)

// UniformBufferObject is the per-frame camera and sampling state read by the
// ray-tracing shaders and the sky fallback.
type UniformBufferObject struct {
	ModelView         mgl32.Mat4
	Projection        mgl32.Mat4
	ModelViewInverse  mgl32.Mat4
	ProjectionInverse mgl32.Mat4

	Aperture      float32
	FocusDistance float32
	HeatmapScale  float32

	TotalNumberOfSamples uint32
	NumberOfSamples      uint32
	NumberOfBounces      uint32
	RandomSeed           uint32

	HasSky      bool
	ShowHeatmap bool
}

// NewUniformBufferObject builds the camera matrices for a frame of extent.
// The projection is flipped vertically to match the device's clip space.
func NewUniformBufferObject(modelView mgl32.Mat4, s *Settings, extent gputypes.Extent3D, hasSky bool) UniformBufferObject {
	aspect := float32(extent.Width) / float32(extent.Height)
	projection := mgl32.Perspective(mgl32.DegToRad(s.FieldOfView), aspect, nearPlane, farPlane)
	projection.Set(1, 1, -projection.At(1, 1))

	return UniformBufferObject{
		ModelView:         modelView,
		Projection:        projection,
		ModelViewInverse:  modelView.Inv(),
		ProjectionInverse: projection.Inv(),
		Aperture:          s.Aperture,
		FocusDistance:     s.FocusDistance,
		HeatmapScale:      s.HeatmapScale,
		NumberOfSamples:   s.NumberOfSamples,
		NumberOfBounces:   s.NumberOfBounces,
		RandomSeed:        1,
		HasSky:            hasSky,
		ShowHeatmap:       s.ShowHeatmap,
	}
}

// Bytes returns the std140 encoding of u.
func (u *UniformBufferObject) Bytes() []byte {
	b := make([]byte, 0, UniformBufferSize)
	for _, m := range []*mgl32.Mat4{&u.ModelView, &u.Projection, &u.ModelViewInverse, &u.ProjectionInverse} {
		for _, f := range m {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
	}
	for _, f := range []float32{u.Aperture, u.FocusDistance, u.HeatmapScale} {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	for _, v := range []uint32{
		u.TotalNumberOfSamples, u.NumberOfSamples, u.NumberOfBounces, u.RandomSeed,
		boolWord(u.HasSky), boolWord(u.ShowHeatmap),
	} {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return append(b, make([]byte, UniformBufferSize-len(b))...)
}

func boolWord(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
