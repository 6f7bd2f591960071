// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scene holds the CPU-side scene state of the path tracer.
//
// It has three parts:
//
//   - [Generate] places non-overlapping [Sphere] primitives on the ground
//     plane by rejection sampling. Output is a pure function of the
//     [GenerateConfig], including its seed.
//   - [Registry] is an ordered set of [Renderable] meshes with a change counter.
//     It is owned by the application and shared by every renderer that
//     draws it.
//   - [Builder] flattens the registry into three parallel slices (mesh
//     objects, vertices, indices) that the renderer uploads to GPU buffers.
//
// All records encode to the fixed little-endian layouts the path-trace
// kernel reads: [SphereStride], [MeshObjectStride], [VertexStride] and
// [IndexStride] bytes.
//
// # Usage
//
//	spheres := scene.Generate(scene.GenerateConfig{
//	    Seed:            42,
//	    Count:           40,
//	    RadiusMin:       1,
//	    RadiusMax:       15,
//	    PlacementRadius: 100,
//	})
//
//	reg := scene.NewRegistry()
//	reg.Register(scene.NewObject(mesh, vecmath.Identity()))
//
//	var b scene.Builder
//	if b.Rebuild(reg) {
//	    // upload b.Objects, b.Vertices, b.Indices
//	}
package scene
