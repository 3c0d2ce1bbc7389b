package scene

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/accel"
	"github.com/gogpu/raytrace/hal"
)

// rayTracingUsage lets the shaders and the acceleration structure builds read
// a scene buffer.
const rayTracingUsage = hal.BufferUsageStorage | hal.BufferUsageShaderDeviceAddress |
	hal.BufferUsageAccelerationStructureBuildInput

// Scene owns the GPU resources of a loaded scene. It is read-only after Load
// and released as a unit by Destroy.
type Scene struct {
	device hal.Device

	models   []Model
	textures []Texture

	vertexBuffer     hal.Buffer
	indexBuffer      hal.Buffer
	materialBuffer   hal.Buffer
	offsetBuffer     hal.Buffer
	aabbBuffer       hal.Buffer
	proceduralBuffer hal.Buffer

	textureImages   []hal.Image
	textureSamplers []hal.Sampler

	hasProcedurals bool
}

// Load concatenates models into the scene buffers, uploads them and uploads
// every texture. On failure everything created so far is released.
func Load(device hal.Device, models []Model, textures []Texture) (*Scene, error) {
	if len(models) == 0 {
		return nil, errors.New("scene: no models")
	}
	s := &Scene{device: device, models: models, textures: textures}
	if err := s.upload(); err != nil {
		s.Destroy()
		return nil, err
	}
	hal.Logger().Info("scene: loaded",
		"models", len(models),
		"textures", len(textures),
		"procedurals", s.hasProcedurals)
	return s, nil
}

// concatenated is the host side of the scene buffers.
type concatenated struct {
	vertices    []byte
	indices     []byte
	materials   []byte
	offsets     []byte
	aabbs       []byte
	procedurals []byte

	hasProcedurals bool
}

func concatenate(models []Model) concatenated {
	var c concatenated
	var vertexCount, indexCount, materialCount uint32
	for _, m := range models {
		c.offsets = binary.LittleEndian.AppendUint32(c.offsets, indexCount)
		c.offsets = binary.LittleEndian.AppendUint32(c.offsets, vertexCount)

		for _, v := range m.Vertices {
			v.MaterialIndex += int32(materialCount)
			c.vertices = AppendVertex(c.vertices, v)
		}
		c.indices = append(c.indices, EncodeIndices(m.Indices)...)
		c.materials = append(c.materials, EncodeMaterials(m.Materials)...)

		vertexCount += uint32(len(m.Vertices))
		indexCount += uint32(len(m.Indices))
		materialCount += uint32(len(m.Materials))

		if m.Procedural != nil {
			lo, hi := m.Procedural.BoundingBox()
			c.aabbs = appendFloats(c.aabbs, lo[0], lo[1], lo[2], hi[0], hi[1], hi[2])
			c.procedurals = appendFloats(c.procedurals, m.Procedural.Center[0], m.Procedural.Center[1],
				m.Procedural.Center[2], m.Procedural.Radius)
			c.hasProcedurals = true
		} else {
			c.aabbs = append(c.aabbs, make([]byte, accel.AABBStride)...)
			c.procedurals = append(c.procedurals, make([]byte, 16)...)
		}
	}
	return c
}

func (s *Scene) upload() error {
	c := concatenate(s.models)
	s.hasProcedurals = c.hasProcedurals

	buffers := []struct {
		dst   *hal.Buffer
		label string
		usage hal.BufferUsage
		data  []byte
	}{
		{&s.vertexBuffer, "Vertices", hal.BufferUsageVertex | rayTracingUsage, c.vertices},
		{&s.indexBuffer, "Indices", hal.BufferUsageIndex | rayTracingUsage, c.indices},
		{&s.materialBuffer, "Materials", rayTracingUsage, c.materials},
		{&s.offsetBuffer, "Offsets", rayTracingUsage, c.offsets},
		{&s.aabbBuffer, "AABBs", rayTracingUsage, c.aabbs},
		{&s.proceduralBuffer, "Procedurals", rayTracingUsage, c.procedurals},
	}
	for _, b := range buffers {
		buf, err := hal.UploadBuffer(s.device, b.label, b.usage, b.data)
		if err != nil {
			return fmt.Errorf("scene: %s buffer: %w", b.label, err)
		}
		*b.dst = buf
	}

	for i, t := range s.textures {
		if err := s.uploadTexture(i, t); err != nil {
			return fmt.Errorf("scene: texture %q: %w", t.Name, err)
		}
	}
	return nil
}

func (s *Scene) uploadTexture(i int, t Texture) error {
	img := t.uploadImage()
	w, h := uint32(img.Bounds().Dx()), uint32(img.Bounds().Dy())
	if w != uint32(t.Image.Bounds().Dx()) || h != uint32(t.Image.Bounds().Dy()) {
		hal.Logger().Debug("scene: texture resized",
			"name", t.Name,
			"from", t.Image.Bounds().Size(),
			"to", img.Bounds().Size())
	}

	staging, err := s.device.CreateBuffer(&hal.BufferDescriptor{
		Label:  t.Name + " Staging",
		Size:   uint64(len(img.Pix)),
		Usage:  hal.BufferUsageTransferSrc,
		Memory: hal.MemoryHostVisible,
	})
	if err != nil {
		return err
	}
	defer s.device.DestroyBuffer(staging)

	mapped, err := s.device.MapBuffer(staging)
	if err != nil {
		return err
	}
	copy(mapped, img.Pix)
	s.device.UnmapBuffer(staging)

	extent := gputypes.NewExtent2D(w, h)
	image, err := s.device.CreateImage(&hal.ImageDescriptor{
		Label:  fmt.Sprintf("Texture #%d %s", i, t.Name),
		Extent: extent,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  hal.ImageUsageSampled | hal.ImageUsageTransferDst,
	})
	if err != nil {
		return err
	}
	s.textureImages = append(s.textureImages, image)

	err = hal.SubmitSingleTime(s.device, "Upload "+t.Name, func(enc hal.CommandEncoder) error {
		if err := hal.RecordTransition(enc, image, hal.ImageLayoutUndefined, hal.ImageLayoutTransferDst); err != nil {
			return err
		}
		enc.CopyBufferToImage(staging, image, extent)
		return hal.RecordTransition(enc, image, hal.ImageLayoutTransferDst, hal.ImageLayoutShaderReadOnly)
	})
	if err != nil {
		return err
	}

	sampler, err := s.device.CreateSampler(&hal.SamplerDescriptor{
		Label:      fmt.Sprintf("Texture Sampler #%d", i),
		Anisotropy: 16,
	})
	if err != nil {
		return err
	}
	s.textureSamplers = append(s.textureSamplers, sampler)
	return nil
}

// Destroy releases textures and buffers. It is safe to call on a partially
// loaded scene.
func (s *Scene) Destroy() {
	for _, smp := range s.textureSamplers {
		s.device.DestroySampler(smp)
	}
	s.textureSamplers = nil
	for _, img := range s.textureImages {
		s.device.DestroyImage(img)
	}
	s.textureImages = nil

	for _, buf := range []*hal.Buffer{
		&s.proceduralBuffer, &s.aabbBuffer, &s.offsetBuffer,
		&s.materialBuffer, &s.indexBuffer, &s.vertexBuffer,
	} {
		if *buf != nil {
			s.device.DestroyBuffer(*buf)
			*buf = nil
		}
	}
}

// VertexBuffer returns the concatenated vertices.
func (s *Scene) VertexBuffer() hal.Buffer { return s.vertexBuffer }

// IndexBuffer returns the concatenated indices.
func (s *Scene) IndexBuffer() hal.Buffer { return s.indexBuffer }

// MaterialBuffer returns the concatenated materials.
func (s *Scene) MaterialBuffer() hal.Buffer { return s.materialBuffer }

// OffsetBuffer returns the per-model index and vertex offsets.
func (s *Scene) OffsetBuffer() hal.Buffer { return s.offsetBuffer }

// AABBBuffer returns one bounding box per model.
func (s *Scene) AABBBuffer() hal.Buffer { return s.aabbBuffer }

// ProceduralBuffer returns one sphere per model.
func (s *Scene) ProceduralBuffer() hal.Buffer { return s.proceduralBuffer }

// HasProcedurals reports whether any model is procedural.
func (s *Scene) HasProcedurals() bool { return s.hasProcedurals }

// VertexStride returns the packed vertex size.
func (s *Scene) VertexStride() uint64 { return VertexSize }

// Models returns the build input of every model in load order.
func (s *Scene) Models() []accel.ModelGeometry {
	out := make([]accel.ModelGeometry, len(s.models))
	for i, m := range s.models {
		out[i] = accel.ModelGeometry{
			VertexCount: uint32(len(m.Vertices)),
			IndexCount:  uint32(len(m.Indices)),
			Procedural:  m.Procedural != nil,
		}
	}
	return out
}

// Textures returns every texture image with its sampler.
func (s *Scene) Textures() []hal.TextureBinding {
	out := make([]hal.TextureBinding, len(s.textureImages))
	for i := range s.textureImages {
		out[i] = hal.TextureBinding{Image: s.textureImages[i], Sampler: s.textureSamplers[i]}
	}
	return out
}

// ModelCount returns the number of models.
func (s *Scene) ModelCount() int { return len(s.models) }

// Stats returns vertex, index and material totals.
func (s *Scene) Stats() (vertices, indices, materials int) {
	for _, m := range s.models {
		vertices += len(m.Vertices)
		indices += len(m.Indices)
		materials += len(m.Materials)
	}
	return vertices, indices, materials
}
