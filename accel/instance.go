package accel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// InstanceSize is the byte size of one packed instance record.
const InstanceSize = 64

// Hit group offsets stored in the instance records.
const (
	HitGroupTriangles  = 0
	HitGroupProcedural = 1
)

// Instance flags.
const (
	// InstanceCullDisable disables back-face culling for the instance.
	InstanceCullDisable uint8 = 0x01
)

// InstanceMaskAll makes an instance visible to every ray.
const InstanceMaskAll uint8 = 0xFF

// Instance is one top-level entry referencing a bottom-level structure.
type Instance struct {
	// Transform is the row-major upper 3x4 part of the object-to-world matrix.
	Transform [12]float32

	// CustomIndex is the 24-bit value shaders read as gl_InstanceCustomIndexEXT.
	CustomIndex uint32
	Mask        uint8

	// SBTOffset is the 24-bit hit group offset into the shader binding table.
	SBTOffset uint32
	Flags     uint8

	// Reference is the device address of the bottom-level structure.
	Reference uint64
}

// CreateInstance builds the instance record of blas. blas must be generated.
// The last row of transform is dropped.
func CreateInstance(blas *BottomLevel, transform mgl32.Mat4, instanceID, hitGroupID uint32) (Instance, error) {
	addr, err := blas.Address()
	if err != nil {
		return Instance{}, fmt.Errorf("accel: instance %d: %w", instanceID, err)
	}
	inst := Instance{
		CustomIndex: instanceID,
		Mask:        InstanceMaskAll,
		SBTOffset:   hitGroupID,
		Flags:       InstanceCullDisable,
		Reference:   addr,
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			inst.Transform[row*4+col] = transform.At(row, col)
		}
	}
	return inst, nil
}

// Put writes the 64-byte record into b.
func (i *Instance) Put(b []byte) {
	_ = b[InstanceSize-1]
	for k, v := range i.Transform {
		binary.LittleEndian.PutUint32(b[k*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(b[48:], i.CustomIndex&0xFFFFFF|uint32(i.Mask)<<24)
	binary.LittleEndian.PutUint32(b[52:], i.SBTOffset&0xFFFFFF|uint32(i.Flags)<<24)
	binary.LittleEndian.PutUint64(b[56:], i.Reference)
}

// DecodeInstance reads a record written by Put.
func DecodeInstance(b []byte) Instance {
	_ = b[InstanceSize-1]
	var i Instance
	for k := range i.Transform {
		i.Transform[k] = math.Float32frombits(binary.LittleEndian.Uint32(b[k*4:]))
	}
	w := binary.LittleEndian.Uint32(b[48:])
	i.CustomIndex, i.Mask = w&0xFFFFFF, uint8(w>>24)
	w = binary.LittleEndian.Uint32(b[52:])
	i.SBTOffset, i.Flags = w&0xFFFFFF, uint8(w>>24)
	i.Reference = binary.LittleEndian.Uint64(b[56:])
	return i
}

// EncodeInstances packs records contiguously.
func EncodeInstances(instances []Instance) []byte {
	out := make([]byte, len(instances)*InstanceSize)
	for k := range instances {
		instances[k].Put(out[k*InstanceSize:])
	}
	return out
}
