// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vecmath provides the float32 vector and matrix types shared by the
// scene, render and GPU layers. Layouts match WGSL: vectors are tightly
// packed float32 components and matrices are column-major.
package vecmath

import (
	"encoding/binary"
	"fmt"

	"github.com/chewxy/math32"
)

// Vec3 is a 3-component float32 vector.
type Vec3 struct {
	X, Y, Z float32
}

// Vec3Size is the encoded size of a Vec3 in bytes.
const Vec3Size = 12

// V3 returns a new Vec3.
func V3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Splat3 returns a Vec3 with all components set to s.
func Splat3(s float32) Vec3 {
	return Vec3{X: s, Y: s, Z: s}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Negate returns -v.
func (v Vec3) Negate() Vec3 {
	return Vec3{-v.X, -v.Y, -v.Z}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// LengthSq returns the squared length of v.
func (v Vec3) LengthSq() float32 {
	return v.Dot(v)
}

// Length returns the length of v.
func (v Vec3) Length() float32 {
	return math32.Sqrt(v.LengthSq())
}

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// DistanceSq returns the squared distance between v and o.
func (v Vec3) DistanceSq(o Vec3) float32 {
	return v.Sub(o).LengthSq()
}

// Lerp returns the linear interpolation from v to o at t.
func (v Vec3) Lerp(o Vec3, t float32) Vec3 {
	return v.Add(o.Sub(v).Scale(t))
}

// String implements fmt.Stringer.
func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// AppendBinary appends the little-endian encoding of v to b.
func (v Vec3) AppendBinary(b []byte) ([]byte, error) {
	return appendFloats(b, v.X, v.Y, v.Z), nil
}

// Vec4 is a 4-component float32 vector.
type Vec4 struct {
	X, Y, Z, W float32
}

// V4 returns a new Vec4.
func V4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

// Vec4FromVec3 extends v with the given w component.
func Vec4FromVec3(v Vec3, w float32) Vec4 {
	return Vec4{X: v.X, Y: v.Y, Z: v.Z, W: w}
}

// Vec3 drops the w component.
func (v Vec4) Vec3() Vec3 {
	return Vec3{v.X, v.Y, v.Z}
}

// Array returns the components as an array.
func (v Vec4) Array() [4]float32 {
	return [4]float32{v.X, v.Y, v.Z, v.W}
}

// appendFloats appends each value as a little-endian IEEE-754 float32.
func appendFloats(b []byte, vals ...float32) []byte {
	for _, f := range vals {
		b = binary.LittleEndian.AppendUint32(b, math32.Float32bits(f))
	}
	return b
}

// AppendFloat32 appends a single little-endian float32 to b.
func AppendFloat32(b []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math32.Float32bits(f))
}
