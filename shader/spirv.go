package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Magic is the first word of every SPIR-V module.
const Magic uint32 = 0x07230203

// ErrInvalidSPIRV is returned for code that is not a SPIR-V module.
var ErrInvalidSPIRV = errors.New("shader: not a SPIR-V module")

// File names of the compiled ray-tracing stages.
const (
	RaygenFile                 = "RayTracing.rgen.spv"
	MissFile                   = "RayTracing.rmiss.spv"
	ClosestHitFile             = "RayTracing.rchit.spv"
	ProceduralClosestHitFile   = "RayTracing.Procedural.rchit.spv"
	ProceduralIntersectionFile = "RayTracing.Procedural.rint.spv"
)

// RayTracingSet is the SPIR-V of every ray-tracing stage.
type RayTracingSet struct {
	Raygen                 []uint32
	Miss                   []uint32
	ClosestHit             []uint32
	ProceduralClosestHit   []uint32
	ProceduralIntersection []uint32
}

// LoadRayTracingSet reads the five compiled stages from dir.
func LoadRayTracingSet(dir string) (*RayTracingSet, error) {
	var set RayTracingSet
	for _, f := range []struct {
		name string
		dst  *[]uint32
	}{
		{RaygenFile, &set.Raygen},
		{MissFile, &set.Miss},
		{ClosestHitFile, &set.ClosestHit},
		{ProceduralClosestHitFile, &set.ProceduralClosestHit},
		{ProceduralIntersectionFile, &set.ProceduralIntersection},
	} {
		code, err := loadFile(filepath.Join(dir, f.name))
		if err != nil {
			return nil, err
		}
		*f.dst = code
	}
	return &set, nil
}

// loadFile reads one SPIR-V file through the module cache. The key includes
// size and modification time so rebuilt shaders are picked up.
func loadFile(path string) ([]uint32, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("shader: %w", err)
	}
	key := Key("spv", path, strconv.FormatInt(info.Size(), 10), strconv.FormatInt(info.ModTime().UnixNano(), 10))
	return modules.GetOrCreate(key, func() ([]uint32, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("shader: %w", err)
		}
		code, err := DecodeSPIRV(data)
		if err != nil {
			return nil, fmt.Errorf("shader: %s: %w", filepath.Base(path), err)
		}
		return code, nil
	})
}

// DecodeSPIRV converts little-endian SPIR-V bytes to words and checks the magic number.
func DecodeSPIRV(data []byte) ([]uint32, error) {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(data))
	}
	code := make([]uint32, len(data)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if code[0] != Magic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrInvalidSPIRV, code[0])
	}
	return code, nil
}
