// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package envmap builds the equirectangular environment texture sampled by
// the path-trace kernel when a ray escapes the scene.
//
// Maps hold linear radiance as RGBA float32 texels, the layout of a
// gpucore.TextureFormatRGBA32Float texture.
package envmap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/pathtracer/gpucore"
	"github.com/gogpu/pathtracer/internal/imagefile"
	"github.com/gogpu/pathtracer/internal/parallel"
	"github.com/gogpu/pathtracer/vecmath"
)

// ErrEmpty is returned for maps without texels.
var ErrEmpty = errors.New("envmap: empty environment map")

// Map is an equirectangular environment map. Row 0 is the zenith.
type Map struct {
	Width, Height int

	// Pix holds Width*Height RGBA texels in row-major order.
	Pix []float32
}

// New allocates a black, opaque map.
func New(width, height int) *Map {
	m := &Map{Width: width, Height: height, Pix: make([]float32, width*height*4)}
	for i := 3; i < len(m.Pix); i += 4 {
		m.Pix[i] = 1
	}
	return m
}

// At returns the radiance of texel (x, y).
func (m *Map) At(x, y int) vecmath.Vec3 {
	i := (y*m.Width + x) * 4
	return vecmath.V3(m.Pix[i], m.Pix[i+1], m.Pix[i+2])
}

// Set stores the radiance of texel (x, y).
func (m *Map) Set(x, y int, c vecmath.Vec3) {
	i := (y*m.Width + x) * 4
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = c.X, c.Y, c.Z
}

// Bytes encodes the texels as little-endian float32 values.
func (m *Map) Bytes() []byte {
	b := make([]byte, 0, len(m.Pix)*4)
	for _, v := range m.Pix {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

// FromImage converts an sRGB image to a linear map.
func FromImage(img image.Image) *Map {
	bounds := img.Bounds()
	m := New(bounds.Dx(), bounds.Dy())
	parallel.Rows(m.Height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < m.Width; x++ {
				c, ok := colorful.MakeColor(img.At(bounds.Min.X+x, bounds.Min.Y+y))
				if !ok {
					// Fully transparent texels carry no color.
					continue
				}
				r, g, b := c.LinearRgb()
				m.Set(x, y, vecmath.V3(float32(r), float32(g), float32(b)))
			}
		}
	})
	return m
}

// Load reads an image file and converts it to a map. Images larger than
// maxDim on either side are downscaled, keeping the aspect ratio; maxDim
// <= 0 disables the limit.
func Load(path string, maxDim int) (*Map, error) {
	img, _, err := imagefile.Open(path)
	if err != nil {
		return nil, fmt.Errorf("envmap: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return FromImage(Fit(img, maxDim)), nil
}

// Fit downscales img so neither side exceeds maxDim. Smaller images are
// returned unchanged.
func Fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}
	if w >= h {
		h = max(1, h*maxDim/w)
		w = maxDim
	} else {
		w = max(1, w*maxDim/h)
		h = maxDim
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// Sky colors of Gradient, in linear RGB.
var (
	zenith  = vecmath.V3(0.25, 0.45, 0.9)
	horizon = vecmath.V3(1, 1, 1)
	ground  = vecmath.V3(0.3, 0.28, 0.25)
)

// Gradient returns a procedural sky: zenith blue fading to white at the
// horizon over a flat ground color.
func Gradient(width, height int) *Map {
	m := New(width, height)
	for y := 0; y < height; y++ {
		// Elevation in [-1, 1], +1 at the zenith.
		t := 1 - 2*(float32(y)+0.5)/float32(height)
		c := ground
		if t >= 0 {
			c = horizon.Lerp(zenith, t)
		}
		for x := 0; x < width; x++ {
			m.Set(x, y, c)
		}
	}
	return m
}

// Image converts the map to an 8-bit sRGB image.
func (m *Map) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			v := m.At(x, y)
			c := colorful.LinearRgb(float64(v.X), float64(v.Y), float64(v.Z)).Clamped()
			r, g, b := c.RGB255()
			img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}
	return img
}

// Upload creates an RGBA32Float texture holding m. The caller owns the
// texture.
func Upload(a gpucore.GPUAdapter, m *Map) (gpucore.TextureID, error) {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return gpucore.InvalidID, ErrEmpty
	}
	tex, err := a.CreateTexture(m.Width, m.Height, gpucore.TextureFormatRGBA32Float)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("envmap: create texture: %w", err)
	}
	if err := a.WriteTexture(tex, m.Bytes()); err != nil {
		a.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("envmap: upload: %w", err)
	}
	return tex, nil
}
