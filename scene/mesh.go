// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/pathtracer/vecmath"
)

// Record strides of the flattened geometry buffers.
const (
	MeshObjectStride = vecmath.Mat4Size + 8
	VertexStride     = vecmath.Vec3Size
	IndexStride      = 4
)

// ErrInvalidMesh is returned by Mesh.Validate.
var ErrInvalidMesh = errors.New("scene: invalid mesh")

// Mesh is an indexed triangle mesh in object space.
type Mesh struct {
	Positions []vecmath.Vec3

	// Indices lists three vertex indices per triangle, relative to
	// Positions.
	Indices []int32
}

// Validate checks that the mesh is made of whole triangles and that every
// index refers to a vertex of the mesh.
func (m *Mesh) Validate() error {
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: %d indices is not a multiple of 3", ErrInvalidMesh, len(m.Indices))
	}
	n := int32(len(m.Positions))
	for i, idx := range m.Indices {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: index %d = %d out of range [0, %d)", ErrInvalidMesh, i, idx, n)
		}
	}
	return nil
}

// Renderable is a mesh instance the geometry builder can flatten.
//
// Registries hold renderables by identity, so implementations are normally
// pointers. Values of non-comparable types are never registered.
type Renderable interface {
	// Mesh returns the object-space geometry. It must not change while the
	// renderable is registered.
	Mesh() *Mesh

	// LocalToWorld returns the current object-to-world transform.
	LocalToWorld() vecmath.Mat4
}

// Object is a Renderable with a mutable transform.
type Object struct {
	mu        sync.RWMutex
	mesh      *Mesh
	transform vecmath.Mat4
}

// NewObject returns an object drawing mesh with the given transform.
func NewObject(mesh *Mesh, transform vecmath.Mat4) *Object {
	return &Object{mesh: mesh, transform: transform}
}

// Mesh implements Renderable.
func (o *Object) Mesh() *Mesh { return o.mesh }

// LocalToWorld implements Renderable.
func (o *Object) LocalToWorld() vecmath.Mat4 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.transform
}

// SetLocalToWorld replaces the object transform. The new transform is
// picked up on the next geometry rebuild.
func (o *Object) SetLocalToWorld(m vecmath.Mat4) {
	o.mu.Lock()
	o.transform = m
	o.mu.Unlock()
}

// MeshObject describes one renderable inside the flattened buffers.
type MeshObject struct {
	LocalToWorld vecmath.Mat4
	IndexOffset  int32
	IndexCount   int32
}

// AppendBinary implements encoding.BinaryAppender.
func (o MeshObject) AppendBinary(b []byte) ([]byte, error) {
	b, _ = o.LocalToWorld.AppendBinary(b)
	b = binary.LittleEndian.AppendUint32(b, uint32(o.IndexOffset))
	b = binary.LittleEndian.AppendUint32(b, uint32(o.IndexCount))
	return b, nil
}

// Index is a vertex index in the flattened index buffer.
type Index int32

// AppendBinary implements encoding.BinaryAppender.
func (i Index) AppendBinary(b []byte) ([]byte, error) {
	return binary.LittleEndian.AppendUint32(b, uint32(i)), nil
}
