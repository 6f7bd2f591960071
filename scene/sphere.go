// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"

	"github.com/gogpu/pathtracer/vecmath"
)

// SphereStride is the encoded size of a Sphere: 14 float32 values.
const SphereStride = 56

// Sphere is an analytic sphere primitive.
//
// Field order is the binary layout read by the kernel.
type Sphere struct {
	Position   vecmath.Vec3
	Radius     float32
	Albedo     vecmath.Vec3
	Specular   vecmath.Vec3
	Smoothness float32
	Emission   vecmath.Vec3
}

// Overlaps reports whether s and o intersect. Touching spheres do not
// overlap.
func (s Sphere) Overlaps(o Sphere) bool {
	r := s.Radius + o.Radius
	return s.Position.DistanceSq(o.Position) < r*r
}

// AppendBinary implements encoding.BinaryAppender.
func (s Sphere) AppendBinary(b []byte) ([]byte, error) {
	b, _ = s.Position.AppendBinary(b)
	b = vecmath.AppendFloat32(b, s.Radius)
	b, _ = s.Albedo.AppendBinary(b)
	b, _ = s.Specular.AppendBinary(b)
	b = vecmath.AppendFloat32(b, s.Smoothness)
	b, _ = s.Emission.AppendBinary(b)
	return b, nil
}

// String returns a short description of the sphere.
func (s Sphere) String() string {
	return fmt.Sprintf("Sphere{pos=%v r=%.3g}", s.Position, s.Radius)
}
