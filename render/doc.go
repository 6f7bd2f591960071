// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render drives the progressive path-tracing loop.
//
// A [Renderer] owns the GPU side of a scene: the sphere buffer, the three
// flattened mesh buffers and two RGBA32Float render targets. Every call to
// [Renderer.Frame] traces one more sample per pixel and folds it into a
// running average, so the presented image converges over time.
//
// # Frame Sequence
//
//  1. Restart accumulation if the [Camera] changed.
//  2. Rebuild and re-upload mesh geometry if the registry changed.
//  3. (Re)allocate the targets if the viewport size changed.
//  4. Bind every kernel parameter. Nothing is cached between frames.
//  5. Dispatch ceil(w/8) x ceil(h/8) workgroups.
//  6. Blend the sample into the convergence target with weight
//     1/(sample+1) and hand it to the [Presenter].
//  7. Advance the sample counter.
//
// Steps 1 to 3 reset the sample counter to zero, as does installing a new
// sphere set with [Renderer.SetSpheres].
//
// # Usage
//
//	r, err := render.New(render.Config{
//	    Adapter:   adapter,
//	    Kernel:    kernel,
//	    Blender:   blender,
//	    Presenter: presenter,
//	    Registry:  registry,
//	    Skybox:    sky,
//	})
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	for {
//	    err := r.Frame(render.FrameInput{
//	        Width: w, Height: h,
//	        Camera: camera,
//	        Light:  &render.DirectionalLight{Direction: sun, Intensity: 1},
//	    })
//	    ...
//	}
//
// Missing collaborators are reported as [ErrNoKernel], [ErrNoSkybox],
// [ErrNoLight] and [ErrNoCamera]; nothing is rendered in that case.
package render
