package scene

import (
	"image/color"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"
)

// randomSeed keeps the random scenes identical between runs.
const randomSeed = 42

// CubeAndSpheres is a textured cube surrounded by three procedural spheres.
func CubeAndSpheres(camera *CameraInitialState) ([]Model, []Texture, error) {
	*camera = CameraInitialState{
		ModelView:     mgl32.Translate3D(0, 0, -2),
		FieldOfView:   90,
		Aperture:      0.05,
		FocusDistance: 2,
		ControlSpeed:  2,
		HasSky:        true,
	}

	models := []Model{
		CreateBox(mgl32.Vec3{-0.4, -0.4, -0.4}, mgl32.Vec3{0.4, 0.4, 0.4}, NewLambertian(mgl32.Vec3{1, 1, 1}, 0)),
		CreateSphere(mgl32.Vec3{1, 0, 0}, 0.5, NewMetallic(mgl32.Vec3{0.7, 0.5, 0.8}, 0.2, NoTexture), true),
		CreateSphere(mgl32.Vec3{-1, 0, 0}, 0.5, NewDielectric(1.5), true),
		CreateSphere(mgl32.Vec3{0, 1, 0}, 0.5, NewLambertian(mgl32.Vec3{1, 1, 1}, 0), true),
	}
	textures := []Texture{
		NewCheckerTexture("Checker", 512, 64, color.RGBA{0x20, 0x40, 0x90, 0xFF}, color.RGBA{0xE0, 0xE0, 0xE0, 0xFF}),
	}
	return models, textures, nil
}

// oneWeekendCamera is the camera of the final Ray Tracing In One Weekend image.
func oneWeekendCamera() CameraInitialState {
	return CameraInitialState{
		ModelView:       mgl32.LookAtV(mgl32.Vec3{13, 2, 3}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}),
		FieldOfView:     20,
		Aperture:        0.1,
		FocusDistance:   10,
		ControlSpeed:    5,
		GammaCorrection: true,
		HasSky:          true,
	}
}

// oneWeekendSpheres returns the ground sphere and the grid of small random
// spheres shared by the One Weekend scenes.
func oneWeekendSpheres() []Model {
	rng := rand.New(rand.NewPCG(randomSeed, 0))
	random := rng.Float32

	models := []Model{
		CreateSphere(mgl32.Vec3{0, -1000, 0}, 1000, NewLambertian(mgl32.Vec3{0.5, 0.5, 0.5}, NoTexture), true),
	}
	clearing := mgl32.Vec3{4, 0.2, 0}
	for a := -11; a < 11; a++ {
		for b := -11; b < 11; b++ {
			choose := random()
			center := mgl32.Vec3{float32(a) + 0.9*random(), 0.2, float32(b) + 0.9*random()}
			if center.Sub(clearing).Len() <= 0.9 {
				continue
			}

			var material Material
			switch {
			case choose < 0.8:
				material = NewLambertian(mgl32.Vec3{
					random() * random(),
					random() * random(),
					random() * random(),
				}, NoTexture)
			case choose < 0.95:
				material = NewMetallic(mgl32.Vec3{
					0.5 * (1 + random()),
					0.5 * (1 + random()),
					0.5 * (1 + random()),
				}, 0.5*random(), NoTexture)
			default:
				material = NewDielectric(1.5)
			}
			models = append(models, CreateSphere(center, 0.2, material, true))
		}
	}
	return models
}

// RayTracingInOneWeekend is the final scene of the Ray Tracing In One Weekend book.
func RayTracingInOneWeekend(camera *CameraInitialState) ([]Model, []Texture, error) {
	*camera = oneWeekendCamera()
	models := append(oneWeekendSpheres(),
		CreateSphere(mgl32.Vec3{0, 1, 0}, 1, NewDielectric(1.5), true),
		CreateSphere(mgl32.Vec3{-4, 1, 0}, 1, NewLambertian(mgl32.Vec3{0.4, 0.2, 0.1}, NoTexture), true),
		CreateSphere(mgl32.Vec3{4, 1, 0}, 1, NewMetallic(mgl32.Vec3{0.7, 0.6, 0.5}, 0, NoTexture), true),
	)
	return models, nil, nil
}

// Planets is RayTracingInOneWeekend with the three large spheres textured.
func Planets(camera *CameraInitialState) ([]Model, []Texture, error) {
	*camera = oneWeekendCamera()
	models := append(oneWeekendSpheres(),
		CreateSphere(mgl32.Vec3{0, 1, 0}, 1, NewMetallic(mgl32.Vec3{1, 1, 1}, 0.1, 2), true),
		CreateSphere(mgl32.Vec3{-4, 1, 0}, 1, NewLambertian(mgl32.Vec3{1, 1, 1}, 0), true),
		CreateSphere(mgl32.Vec3{4, 1, 0}, 1, NewMetallic(mgl32.Vec3{1, 1, 1}, 0, 1), true),
	)
	textures := []Texture{
		NewBandTexture("Mars", 1024, 512, []color.RGBA{
			{0x8C, 0x3B, 0x1E, 0xFF}, {0xB5, 0x5A, 0x30, 0xFF}, {0xC8, 0x74, 0x3F, 0xFF}, {0x9E, 0x48, 0x26, 0xFF},
		}),
		NewCheckerTexture("Moon", 512, 32, color.RGBA{0x9A, 0x9A, 0x9A, 0xFF}, color.RGBA{0x6E, 0x6E, 0x6E, 0xFF}),
		NewBandTexture("Earth", 1000, 500, []color.RGBA{
			{0xF0, 0xF0, 0xF0, 0xFF}, {0x1E, 0x50, 0xA0, 0xFF}, {0x2E, 0x7D, 0x32, 0xFF},
			{0x1E, 0x50, 0xA0, 0xFF}, {0xF0, 0xF0, 0xF0, 0xFF},
		}),
	}
	return models, textures, nil
}

// CornellBox is the Cornell box with two rotated white boxes.
func CornellBox(camera *CameraInitialState) ([]Model, []Texture, error) {
	*camera = CameraInitialState{
		ModelView:       mgl32.LookAtV(mgl32.Vec3{278, 278, 800}, mgl32.Vec3{278, 278, 0}, mgl32.Vec3{0, 1, 0}),
		FieldOfView:     40,
		FocusDistance:   10,
		ControlSpeed:    500,
		GammaCorrection: true,
	}

	white := NewLambertian(mgl32.Vec3{0.73, 0.73, 0.73}, NoTexture)
	box0 := CreateBox(mgl32.Vec3{0, 0, -165}, mgl32.Vec3{165, 165, 0}, white)
	box1 := CreateBox(mgl32.Vec3{0, 0, -165}, mgl32.Vec3{165, 330, 0}, white)
	box0.Transform(mgl32.Translate3D(555-130-165, 0, -65).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(-18))))
	box1.Transform(mgl32.Translate3D(555-265-165, 0, -295).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(15))))

	return []Model{CreateCornellBox(555), box0, box1}, nil, nil
}

// ProceduralSpheres is a row of procedural spheres, one per material model,
// on a checkered floor under a spherical light.
func ProceduralSpheres(camera *CameraInitialState) ([]Model, []Texture, error) {
	*camera = CameraInitialState{
		ModelView:       mgl32.LookAtV(mgl32.Vec3{0, 3, 9}, mgl32.Vec3{0, 0.5, 0}, mgl32.Vec3{0, 1, 0}),
		FieldOfView:     35,
		Aperture:        0.02,
		FocusDistance:   9,
		ControlSpeed:    5,
		GammaCorrection: true,
		HasSky:          true,
	}

	models := []Model{
		CreatePlane(mgl32.Vec3{0, 0, 0}, 20, NewLambertian(mgl32.Vec3{1, 1, 1}, 0)),
		CreateSphere(mgl32.Vec3{-3, 1, 0}, 1, NewLambertian(mgl32.Vec3{0.8, 0.3, 0.3}, NoTexture), true),
		CreateSphere(mgl32.Vec3{-1, 1, 0}, 1, NewMetallic(mgl32.Vec3{0.8, 0.8, 0.8}, 0.05, NoTexture), true),
		CreateSphere(mgl32.Vec3{1, 1, 0}, 1, NewDielectric(1.5), true),
		CreateSphere(mgl32.Vec3{3, 1, 0}, 1, NewIsotropic(mgl32.Vec3{0.3, 0.5, 0.8}), true),
		CreateSphere(mgl32.Vec3{0, 5, -2}, 1, NewDiffuseLight(mgl32.Vec3{4, 4, 4}), true),
	}
	textures := []Texture{
		NewCheckerTexture("Floor", 256, 16, color.RGBA{0x30, 0x30, 0x30, 0xFF}, color.RGBA{0xC0, 0xC0, 0xC0, 0xFF}),
	}
	return models, textures, nil
}
