package accel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/raytrace/hal"
)

// ModelGeometry is the per-model input of a scene build.
type ModelGeometry struct {
	VertexCount uint32
	IndexCount  uint32

	// Procedural models are built from one AABB with an intersection shader.
	Procedural bool
}

// Scene is what the builder needs from a loaded scene.
type Scene interface {
	SceneBuffers

	// Models returns the geometry of every model in load order. Vertex and index
	// data of model i follow those of model i-1 in the scene buffers, and the
	// AABB buffer holds exactly one box per model.
	Models() []ModelGeometry
}

// Stats summarizes the last build.
type Stats struct {
	BottomLevelCount int
	InstanceCount    int
	BottomLevelBytes uint64
	TopLevelBytes    uint64
	ScratchBytes     uint64
	BuildTime        time.Duration
}

// Builder owns every structure of a scene together with the buffers backing them.
type Builder struct {
	device hal.Device
	rt     hal.RayTracing

	blas      []*BottomLevel
	tlas      *TopLevel
	instances []Instance

	blasBuffer     hal.Buffer
	tlasBuffer     hal.Buffer
	instanceBuffer hal.Buffer

	stats Stats
}

// NewBuilder returns a builder for device. The device must expose ray tracing.
func NewBuilder(device hal.Device) (*Builder, error) {
	rt := device.RayTracing()
	if rt == nil {
		return nil, ErrNoRayTracing
	}
	return &Builder{device: device, rt: rt}, nil
}

// Create builds every bottom-level structure and the top-level structure of
// scene in one blocking submission. On failure everything created so far is
// released and no structure is usable.
func (b *Builder) Create(ctx context.Context, scene Scene) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.tlas != nil {
		return errors.New("accel: structures already created")
	}

	start := time.Now()
	if err := b.create(scene); err != nil {
		b.Delete()
		return err
	}
	b.stats.BuildTime = time.Since(start)

	hal.Logger().Info("accel: acceleration structures built",
		"blas", b.stats.BottomLevelCount,
		"instances", b.stats.InstanceCount,
		"blasBytes", b.stats.BottomLevelBytes,
		"tlasBytes", b.stats.TopLevelBytes,
		"scratchBytes", b.stats.ScratchBytes,
		"duration", b.stats.BuildTime)
	return nil
}

func (b *Builder) create(scene Scene) error {
	models := scene.Models()
	if len(models) == 0 {
		return errors.New("accel: scene has no models")
	}

	// Describe every BLAS first, allocation sizes depend on the queries.
	var (
		vertexOffset, indexOffset, aabbOffset uint64
		resultTotal, scratchTotal             uint64
	)
	stride := scene.VertexStride()
	b.blas = make([]*BottomLevel, 0, len(models))
	for i, m := range models {
		var geom GeometryDescriptor
		if m.Procedural {
			geom.AddAABB(scene, uint32(aabbOffset), 1, true)
		} else {
			geom.AddTriangles(scene, uint32(vertexOffset), m.VertexCount, uint32(indexOffset), m.IndexCount, true)
		}
		vertexOffset += uint64(m.VertexCount) * stride
		indexOffset += uint64(m.IndexCount) * 4
		aabbOffset += AABBStride

		blas, err := NewBottomLevel(b.rt, &geom)
		if err != nil {
			return fmt.Errorf("accel: model %d: %w", i, err)
		}
		blas.SetLabel(fmt.Sprintf("BLAS #%d", i))
		sizes := blas.BuildSizes()
		resultTotal += sizes.AccelerationStructureSize
		scratchTotal += sizes.BuildScratchSize
		b.blas = append(b.blas, blas)
	}

	var err error
	b.blasBuffer, err = b.device.CreateBuffer(&hal.BufferDescriptor{
		Label:  "BLAS Buffer",
		Size:   resultTotal,
		Usage:  hal.BufferUsageAccelerationStructureStorage | hal.BufferUsageShaderDeviceAddress,
		Memory: hal.MemoryDeviceLocal,
	})
	if err != nil {
		return fmt.Errorf("accel: result buffer: %w", err)
	}
	blasScratch, err := b.createScratch("BLAS Scratch Buffer", scratchTotal)
	if err != nil {
		return err
	}
	defer b.device.DestroyBuffer(blasScratch)

	var tlasScratch hal.Buffer
	defer func() {
		if tlasScratch != nil {
			b.device.DestroyBuffer(tlasScratch)
		}
	}()

	err = hal.SubmitSingleTime(b.device, "Build Acceleration Structures", func(enc hal.CommandEncoder) error {
		var (
			err                         error
			resultOffset, scratchOffset uint64
		)
		for _, blas := range b.blas {
			if err := blas.Generate(enc, blasScratch, scratchOffset, b.blasBuffer, resultOffset); err != nil {
				return err
			}
			b.device.SetObjectName(blas.Handle(), blas.Label())
			resultOffset += blas.BuildSizes().AccelerationStructureSize
			scratchOffset += blas.BuildSizes().BuildScratchSize
		}

		// Instance order follows model order so the instance index recovers
		// the per-model offsets in the hit shaders.
		b.instances = make([]Instance, len(b.blas))
		for i, blas := range b.blas {
			hitGroup := uint32(HitGroupTriangles)
			if models[i].Procedural {
				hitGroup = HitGroupProcedural
			}
			inst, err := CreateInstance(blas, mgl32.Ident4(), uint32(i), hitGroup)
			if err != nil {
				return err
			}
			b.instances[i] = inst
		}
		b.instanceBuffer, err = hal.UploadBuffer(b.device, "TLAS Instances",
			hal.BufferUsageShaderDeviceAddress|hal.BufferUsageAccelerationStructureBuildInput,
			EncodeInstances(b.instances))
		if err != nil {
			return fmt.Errorf("accel: instance buffer: %w", err)
		}

		enc.PipelineBarrier(hal.AccelerationStructureBuildBarrier())

		if b.tlas, err = NewTopLevel(b.rt, b.instanceBuffer.DeviceAddress(), uint32(len(b.instances))); err != nil {
			return err
		}
		sizes := b.tlas.BuildSizes()
		b.tlasBuffer, err = b.device.CreateBuffer(&hal.BufferDescriptor{
			Label:  "TLAS Buffer",
			Size:   sizes.AccelerationStructureSize,
			Usage:  hal.BufferUsageAccelerationStructureStorage | hal.BufferUsageShaderDeviceAddress,
			Memory: hal.MemoryDeviceLocal,
		})
		if err != nil {
			return fmt.Errorf("accel: result buffer: %w", err)
		}
		tlasScratch, err = b.createScratch("TLAS Scratch Buffer", sizes.BuildScratchSize)
		if err != nil {
			return err
		}
		if err := b.tlas.Generate(enc, tlasScratch, 0, b.tlasBuffer, 0); err != nil {
			return err
		}
		b.device.SetObjectName(b.tlas.Handle(), b.tlas.Label())
		scratchTotal += sizes.BuildScratchSize
		return nil
	})
	if err != nil {
		return err
	}

	b.stats = Stats{
		BottomLevelCount: len(b.blas),
		InstanceCount:    len(b.instances),
		BottomLevelBytes: resultTotal,
		TopLevelBytes:    b.tlas.BuildSizes().AccelerationStructureSize,
		ScratchBytes:     scratchTotal,
	}
	return nil
}

func (b *Builder) createScratch(label string, size uint64) (hal.Buffer, error) {
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: hal.BufferUsageShaderDeviceAddress | hal.BufferUsageStorage |
			hal.BufferUsageAccelerationStructureStorage,
		Memory: hal.MemoryDeviceLocal,
	})
	if err != nil {
		return nil, fmt.Errorf("accel: %s: %w", label, err)
	}
	return buf, nil
}

// Delete destroys the top-level structure, then every bottom-level structure,
// then the instance buffer and the result buffers. It is safe to call on a
// builder that holds nothing.
func (b *Builder) Delete() {
	if b.tlas != nil {
		b.tlas.Release()
		b.tlas = nil
	}
	for _, blas := range b.blas {
		blas.Release()
	}
	b.blas = nil
	b.instances = nil

	for _, buf := range []*hal.Buffer{&b.instanceBuffer, &b.tlasBuffer, &b.blasBuffer} {
		if *buf != nil {
			b.device.DestroyBuffer(*buf)
			*buf = nil
		}
	}
	b.stats = Stats{}
}

// TopLevel returns the scene structure, or nil before Create.
func (b *Builder) TopLevel() *TopLevel { return b.tlas }

// BottomLevels returns the model structures in model order.
func (b *Builder) BottomLevels() []*BottomLevel { return b.blas }

// Instances returns the instance records uploaded for the top-level build.
func (b *Builder) Instances() []Instance { return b.instances }

// InstanceBuffer returns the uploaded instance array.
func (b *Builder) InstanceBuffer() hal.Buffer { return b.instanceBuffer }

// Stats returns the statistics of the last successful Create.
func (b *Builder) Stats() Stats { return b.stats }
