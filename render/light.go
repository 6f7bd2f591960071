package render

import "github.com/gogpu/pathtracer/vecmath"

// DirectionalLight is a light infinitely far away.
type DirectionalLight struct {
	// Direction is the direction the light travels in, e.g. (0, -1, 0) for
	// a sun straight overhead. It does not need to be normalized.
	Direction vecmath.Vec3

	Intensity float32
}

// Vector returns the _DirectionalLight kernel value: the normalized
// direction in xyz and the intensity in w.
func (l DirectionalLight) Vector() [4]float32 {
	return vecmath.Vec4FromVec3(l.Direction.Normalize(), l.Intensity).Array()
}
