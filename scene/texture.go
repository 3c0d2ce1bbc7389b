package scene

import (
	"image"
	"image/color"
	"math/bits"

	"golang.org/x/image/draw"
)

// Texture is an in-memory RGBA image sampled by the hit shaders.
type Texture struct {
	Name  string
	Image *image.RGBA
}

// NewCheckerTexture returns a size x size checkerboard with cells of cell pixels.
func NewCheckerTexture(name string, size, cell int, a, b color.RGBA) Texture {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			img.SetRGBA(x, y, c)
		}
	}
	return Texture{Name: name, Image: img}
}

// NewBandTexture returns a texture of horizontal color bands, one per color,
// spread over height rows. Planets are textured with it.
func NewBandTexture(name string, width, height int, bands []color.RGBA) Texture {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		c := bands[y*len(bands)/height]
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return Texture{Name: name, Image: img}
}

// nextPowerOfTwo returns the smallest power of two not below n.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// uploadImage returns the texture resized to power-of-two dimensions. Images
// that already have them are returned as is.
func (t Texture) uploadImage() *image.RGBA {
	b := t.Image.Bounds()
	w, h := nextPowerOfTwo(b.Dx()), nextPowerOfTwo(b.Dy())
	if w == b.Dx() && h == b.Dy() && b.Min == (image.Point{}) {
		return t.Image
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), t.Image, b, draw.Src, nil)
	return dst
}
