package scene

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

// MaterialSize is the packed size of a Material.
const MaterialSize = 32

// NoTexture marks a material without a diffuse texture.
const NoTexture = -1

// MaterialModel selects the scattering function of a material.
type MaterialModel uint32

// Material models. The values are shared with the hit shaders.
const (
	Lambertian MaterialModel = iota
	Metallic
	Dielectric
	Isotropic
	DiffuseLight
)

// String returns the model name.
func (m MaterialModel) String() string {
	switch m {
	case Lambertian:
		return "Lambertian"
	case Metallic:
		return "Metallic"
	case Dielectric:
		return "Dielectric"
	case Isotropic:
		return "Isotropic"
	case DiffuseLight:
		return "DiffuseLight"
	default:
		return "Unknown"
	}
}

// Material describes how a surface scatters light.
type Material struct {
	Diffuse          mgl32.Vec4
	DiffuseTextureID int32
	Fuzziness        float32
	RefractionIndex  float32
	Model            MaterialModel
}

// NewLambertian returns a diffuse material. textureID is a texture index or NoTexture.
func NewLambertian(diffuse mgl32.Vec3, textureID int32) Material {
	return Material{Diffuse: diffuse.Vec4(1), DiffuseTextureID: textureID, Model: Lambertian}
}

// NewMetallic returns a reflective material; fuzziness perturbs the reflection.
func NewMetallic(diffuse mgl32.Vec3, fuzziness float32, textureID int32) Material {
	return Material{Diffuse: diffuse.Vec4(1), DiffuseTextureID: textureID, Fuzziness: fuzziness, Model: Metallic}
}

// NewDielectric returns a glass-like material.
func NewDielectric(refractionIndex float32) Material {
	return Material{
		Diffuse:          mgl32.Vec4{0.7, 0.7, 1, 1},
		DiffuseTextureID: NoTexture,
		RefractionIndex:  refractionIndex,
		Model:            Dielectric,
	}
}

// NewIsotropic returns a material scattering uniformly in all directions.
func NewIsotropic(diffuse mgl32.Vec3) Material {
	return Material{Diffuse: diffuse.Vec4(1), DiffuseTextureID: NoTexture, Model: Isotropic}
}

// NewDiffuseLight returns an emissive material.
func NewDiffuseLight(emitted mgl32.Vec3) Material {
	return Material{Diffuse: emitted.Vec4(1), DiffuseTextureID: NoTexture, Model: DiffuseLight}
}

// AppendMaterial appends the packed material to b.
func AppendMaterial(b []byte, m Material) []byte {
	b = appendFloats(b, m.Diffuse[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(m.DiffuseTextureID))
	b = appendFloats(b, m.Fuzziness, m.RefractionIndex)
	return binary.LittleEndian.AppendUint32(b, uint32(m.Model))
}

// EncodeMaterials packs materials contiguously.
func EncodeMaterials(materials []Material) []byte {
	b := make([]byte, 0, len(materials)*MaterialSize)
	for _, m := range materials {
		b = AppendMaterial(b, m)
	}
	return b
}
