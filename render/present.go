// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/gogpu/pathtracer/gpucore"
	"github.com/gogpu/pathtracer/internal/parallel"
)

// ImagePresenter is a Presenter that reads the convergence target back to
// the CPU after every frame and keeps it as an 8-bit sRGB image.
type ImagePresenter struct {
	adapter gpucore.GPUAdapter

	mu     sync.Mutex
	img    *image.RGBA
	frames uint64
}

var _ Presenter = (*ImagePresenter)(nil)

// NewImagePresenter creates a presenter reading textures from adapter.
func NewImagePresenter(adapter gpucore.GPUAdapter) *ImagePresenter {
	return &ImagePresenter{adapter: adapter}
}

// Present implements Presenter.
func (p *ImagePresenter) Present(tex gpucore.TextureID, width, height int) error {
	img, err := ReadImage(p.adapter, tex, width, height)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.img = img
	p.frames++
	p.mu.Unlock()
	return nil
}

// Image returns the last presented frame, or nil before the first one.
// The image is shared; callers must not modify it.
func (p *ImagePresenter) Image() *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.img
}

// Frames returns the number of frames presented.
func (p *ImagePresenter) Frames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// ReadImage reads an RGBA32Float texture back and converts it to sRGB.
func ReadImage(a gpucore.GPUAdapter, tex gpucore.TextureID, width, height int) (*image.RGBA, error) {
	data, err := a.ReadTexture(tex)
	if err != nil {
		return nil, fmt.Errorf("render: read back texture %d: %w", tex, err)
	}
	return DecodeRGBA32F(data, width, height)
}

// DecodeRGBA32F converts tightly packed little-endian RGBA32Float texels
// holding linear radiance to an 8-bit sRGB image. Channels are clamped to
// [0, 1].
func DecodeRGBA32F(data []byte, width, height int) (*image.RGBA, error) {
	const texel = 16
	if want := width * height * texel; width <= 0 || height <= 0 || len(data) != want {
		return nil, fmt.Errorf("render: %d bytes do not hold %dx%d RGBA32Float texels", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	parallel.Rows(height, func(y0, y1 int) {
		for i := y0 * width; i < y1*width; i++ {
			px := data[i*texel:]
			c := colorful.LinearRgb(channel(px[0:]), channel(px[4:]), channel(px[8:])).Clamped()
			r, g, b := c.RGB255()
			img.Pix[i*4+0] = r
			img.Pix[i*4+1] = g
			img.Pix[i*4+2] = b
			img.Pix[i*4+3] = uint8(math.Round(clamp01(channel(px[12:])) * 255))
		}
	})
	return img, nil
}

func channel(b []byte) float64 {
	v := float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
