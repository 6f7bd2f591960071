// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/chewxy/math32"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/gogpu/pathtracer/vecmath"
)

// Policy selects how Generate places and shades spheres.
type Policy int

const (
	// PolicyScatter scatters spheres over a disk on the ground plane.
	// Spheres are mirror-like and non-emissive.
	PolicyScatter Policy = iota

	// PolicyLights places spheres along a rising spiral above four large
	// emissive pillars. Every third spiral sphere is a light; the others
	// alternate between dielectric and metal with random smoothness.
	PolicyLights
)

// String returns the policy name used in configuration files.
func (p Policy) String() string {
	switch p {
	case PolicyScatter:
		return "scatter"
	case PolicyLights:
		return "lights"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name. The empty string selects PolicyScatter.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "scatter":
		return PolicyScatter, nil
	case "lights":
		return PolicyLights, nil
	default:
		return PolicyScatter, fmt.Errorf("scene: unknown placement policy %q", s)
	}
}

// Dielectric specular reflectance at normal incidence.
const dielectricSpecular = 0.04

// Lights policy constants.
const (
	spiralAlpha    = 8
	spiralThetaMax = 10

	minLightHeight = 1
	maxLightHeight = 2

	pillarRadius = 12
	pillarOffset = 40

	emissionMin = 3
	emissionMax = 8
)

// GenerateConfig configures Generate.
type GenerateConfig struct {
	// Seed makes the output reproducible. Equal configs give bit-identical
	// spheres.
	Seed int64

	// Count is the number of candidate placements. Rejected candidates are
	// skipped, not retried, so fewer spheres may be returned.
	Count int

	// RadiusMin and RadiusMax bound the sphere radius.
	RadiusMin float32
	RadiusMax float32

	// PlacementRadius is the radius of the disk sphere centers are drawn
	// from (PolicyScatter only).
	PlacementRadius float32

	// DielectricFraction is the probability that a scattered sphere is
	// dielectric rather than metal. Zero makes every sphere metal.
	DielectricFraction float32

	Policy Policy
}

// Generate places spheres according to cfg.
//
// Candidates that intersect an already accepted sphere are discarded, so
// no two returned spheres overlap. A non-positive Count yields nil.
func Generate(cfg GenerateConfig) []Sphere {
	if cfg.Count <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	switch cfg.Policy {
	case PolicyLights:
		return generateLights(rng, cfg)
	default:
		return generateScatter(rng, cfg)
	}
}

func generateScatter(rng *rand.Rand, cfg GenerateConfig) []Sphere {
	spheres := make([]Sphere, 0, cfg.Count)

	for range cfg.Count {
		x, z := insideDisk(rng, cfg.PlacementRadius)
		radius := lerp(cfg.RadiusMin, cfg.RadiusMax, rng.Float32())
		s := Sphere{
			Position: vecmath.V3(x, radius, z),
			Radius:   radius,
		}
		if overlapsAny(s, spheres) {
			continue
		}

		color := randomHSV(rng, 0, 1)
		metal := rng.Float32() >= cfg.DielectricFraction
		if metal {
			s.Specular = color
		} else {
			s.Albedo = color
			s.Specular = vecmath.Splat3(dielectricSpecular)
		}
		s.Smoothness = 1
		spheres = append(spheres, s)
	}
	return spheres
}

func generateLights(rng *rand.Rand, cfg GenerateConfig) []Sphere {
	spheres := make([]Sphere, 0, cfg.Count+4)

	for i := range 4 {
		x := float32(-pillarOffset)
		if i&1 != 0 {
			x = pillarOffset
		}
		z := float32(-pillarOffset)
		if i&2 != 0 {
			z = pillarOffset
		}
		spheres = append(spheres, Sphere{
			Position:   vecmath.V3(x, pillarRadius, z),
			Radius:     pillarRadius,
			Albedo:     vecmath.Splat3(1),
			Specular:   vecmath.Splat3(1),
			Smoothness: rng.Float32(),
			Emission:   randomHSV(rng, emissionMin, emissionMax),
		})
	}

	for i := range cfg.Count {
		var t float32
		if cfg.Count > 1 {
			t = float32(i) / float32(cfg.Count-1)
		}
		theta := t * spiralThetaMax
		sin, cos := math32.Sincos(theta)
		r := spiralAlpha * math32.Sqrt(theta)

		radius := cfg.RadiusMin + t*cfg.RadiusMax
		y := 2.5*cfg.RadiusMax + 3*cfg.RadiusMax*(1-t) + rng.Float32()*(maxLightHeight-minLightHeight)
		s := Sphere{
			Position: vecmath.V3(r*cos, y, r*sin),
			Radius:   radius,
		}
		if overlapsAny(s, spheres) {
			continue
		}

		color := randomHSV(rng, 0, 1)
		switch i % 3 {
		case 0:
			s.Albedo = vecmath.Splat3(1)
			s.Specular = vecmath.Splat3(1)
			s.Smoothness = rng.Float32()
			s.Emission = randomHSV(rng, emissionMin, emissionMax)
		case 1:
			s.Albedo = color
			s.Specular = vecmath.Splat3(dielectricSpecular)
			s.Smoothness = rng.Float32()
		default:
			s.Specular = color
			s.Smoothness = rng.Float32()
		}
		spheres = append(spheres, s)
	}
	return spheres
}

func overlapsAny(s Sphere, accepted []Sphere) bool {
	for _, o := range accepted {
		if s.Overlaps(o) {
			return true
		}
	}
	return false
}

// insideDisk returns a point distributed uniformly inside a disk of the
// given radius centered at the origin.
func insideDisk(rng *rand.Rand, radius float32) (x, y float32) {
	r := radius * math32.Sqrt(rng.Float32())
	sin, cos := math32.Sincos(2 * math32.Pi * rng.Float32())
	return r * cos, r * sin
}

// randomHSV draws a color with uniform hue and saturation and a value in
// [vMin, vMax), returned as RGB. Values above 1 scale the color linearly,
// which is how emission strengths are expressed.
func randomHSV(rng *rand.Rand, vMin, vMax float32) vecmath.Vec3 {
	h := rng.Float64() * 360
	s := rng.Float64()
	v := float64(vMin) + rng.Float64()*float64(vMax-vMin)
	c := colorful.Hsv(h, s, v)
	return vecmath.V3(float32(c.R), float32(c.G), float32(c.B))
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
