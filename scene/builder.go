// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import "github.com/gogpu/pathtracer/vecmath"

// Builder flattens a Registry into the three parallel slices uploaded to
// the _MeshObjects, _Vertices and _Indices buffers.
//
// The slices are owned by the builder and reused between rebuilds; they
// stay valid until the next successful Rebuild. A builder follows a single
// registry; several builders may follow the same one.
type Builder struct {
	Objects  []MeshObject
	Vertices []vecmath.Vec3
	Indices  []Index

	gen   uint64
	stale bool
}

// Invalidate forces the next Rebuild of this builder only, for example
// after its upload failed.
func (b *Builder) Invalidate() {
	b.stale = true
}

// Rebuild regenerates the flattened geometry if reg changed since this
// builder last flattened it and reports whether it did.
//
// Members are visited in registration order. Each member's indices are
// shifted by the number of vertices already emitted, so every index of a
// MeshObject's [IndexOffset, IndexOffset+IndexCount) range points into
// that member's own vertices. Members without a valid mesh are skipped.
func (b *Builder) Rebuild(reg *Registry) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if !b.stale && b.gen == reg.gen {
		return false
	}

	b.Objects = b.Objects[:0]
	b.Vertices = b.Vertices[:0]
	b.Indices = b.Indices[:0]

	for _, r := range reg.members {
		mesh := r.Mesh()
		if mesh == nil || mesh.Validate() != nil {
			continue
		}

		firstVertex := int32(len(b.Vertices))
		b.Vertices = append(b.Vertices, mesh.Positions...)

		firstIndex := int32(len(b.Indices))
		for _, idx := range mesh.Indices {
			b.Indices = append(b.Indices, Index(idx+firstVertex))
		}

		b.Objects = append(b.Objects, MeshObject{
			LocalToWorld: r.LocalToWorld(),
			IndexOffset:  firstIndex,
			IndexCount:   int32(len(mesh.Indices)),
		})
	}

	b.gen = reg.gen
	b.stale = false
	reg.built = reg.gen
	return true
}
