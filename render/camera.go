// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"sync"

	"github.com/gogpu/pathtracer/vecmath"
)

// ErrSingularProjection is returned when a projection matrix cannot be
// inverted.
var ErrSingularProjection = errors.New("render: projection matrix is singular")

// Camera holds the view transforms bound to the kernel every frame and a
// changed flag the renderer consumes to restart accumulation.
//
// Any pose or projection update that alters a matrix sets the flag. The
// renderer clears it when it resets the sample counter. Camera is safe for
// concurrent use, so a window or input goroutine can drive it.
type Camera struct {
	mu sync.Mutex

	cameraToWorld     vecmath.Mat4
	projection        vecmath.Mat4
	inverseProjection vecmath.Mat4
	changed           bool
}

// NewCamera returns a camera at the origin looking down -Z with an
// identity projection. The camera starts out changed.
func NewCamera() *Camera {
	return &Camera{
		cameraToWorld:     vecmath.Identity(),
		projection:        vecmath.Identity(),
		inverseProjection: vecmath.Identity(),
		changed:           true,
	}
}

// NewPerspectiveCamera returns a camera at eye looking at target.
// fovY is in radians.
func NewPerspectiveCamera(eye, target, up vecmath.Vec3, fovY, aspect, near, far float32) (*Camera, error) {
	c := NewCamera()
	c.SetLookAt(eye, target, up)
	if err := c.SetProjection(vecmath.Perspective(fovY, aspect, near, far)); err != nil {
		return nil, err
	}
	return c, nil
}

// SetPose sets the camera-to-world transform.
func (c *Camera) SetPose(cameraToWorld vecmath.Mat4) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cameraToWorld != cameraToWorld {
		c.cameraToWorld = cameraToWorld
		c.changed = true
	}
}

// SetLookAt places the camera at eye looking at target.
func (c *Camera) SetLookAt(eye, target, up vecmath.Vec3) {
	c.SetPose(vecmath.LookAt(eye, target, up))
}

// SetProjection sets the projection matrix. A singular matrix is rejected
// and the previous projection is kept.
func (c *Camera) SetProjection(projection vecmath.Mat4) error {
	inv, ok := projection.Invert()
	if !ok {
		return ErrSingularProjection
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projection != projection {
		c.projection = projection
		c.inverseProjection = inv
		c.changed = true
	}
	return nil
}

// CameraToWorld returns the camera-to-world transform.
func (c *Camera) CameraToWorld() vecmath.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cameraToWorld
}

// Projection returns the projection matrix.
func (c *Camera) Projection() vecmath.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

// InverseProjection returns the inverse of the projection matrix.
func (c *Camera) InverseProjection() vecmath.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inverseProjection
}

// Changed reports whether the camera changed since the flag was last
// cleared.
func (c *Camera) Changed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// ClearChanged clears the changed flag.
func (c *Camera) ClearChanged() {
	c.mu.Lock()
	c.changed = false
	c.mu.Unlock()
}

// takeChanged clears the changed flag and returns its previous value.
func (c *Camera) takeChanged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := c.changed
	c.changed = false
	return changed
}
