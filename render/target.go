// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"

	"github.com/gogpu/pathtracer/gpucore"
)

// targetFormat is the format of both accumulation textures. It must stay
// float so the running average does not band.
const targetFormat = gpucore.TextureFormatRGBA32Float

// targets is the pair of equally sized textures the renderer accumulates
// into: target receives the raw sample of the current frame, converged
// holds the running average that is presented.
type targets struct {
	width, height int
	target        gpucore.TextureID
	converged     gpucore.TextureID
}

// valid reports whether both textures exist.
func (t *targets) valid() bool {
	return t.target != gpucore.InvalidID && t.converged != gpucore.InvalidID
}

// fits reports whether the textures exist and match the viewport.
func (t *targets) fits(width, height int) bool {
	return t.valid() && t.width == width && t.height == height
}

// release destroys both textures.
func (t *targets) release(a gpucore.GPUAdapter) {
	if t.target != gpucore.InvalidID {
		a.DestroyTexture(t.target)
	}
	if t.converged != gpucore.InvalidID {
		a.DestroyTexture(t.converged)
	}
	*t = targets{}
}

// allocate replaces the textures with a new width x height pair.
func (t *targets) allocate(a gpucore.GPUAdapter, width, height int) error {
	t.release(a)

	target, err := a.CreateTexture(width, height, targetFormat)
	if err != nil {
		return fmt.Errorf("render: create %dx%d target: %w", width, height, err)
	}
	converged, err := a.CreateTexture(width, height, targetFormat)
	if err != nil {
		a.DestroyTexture(target)
		return fmt.Errorf("render: create %dx%d converged target: %w", width, height, err)
	}

	*t = targets{width: width, height: height, target: target, converged: converged}
	return nil
}
