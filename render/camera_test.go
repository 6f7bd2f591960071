package render

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"

	"github.com/gogpu/pathtracer/vecmath"
)

func TestCamera_ChangedFlag(t *testing.T) {
	c := NewCamera()
	if !c.Changed() {
		t.Error("new camera should start changed")
	}
	c.ClearChanged()
	if c.Changed() {
		t.Error("Changed() = true after ClearChanged")
	}

	c.SetPose(vecmath.Identity())
	if c.Changed() {
		t.Error("setting the same pose flagged a change")
	}

	c.SetLookAt(vecmath.V3(0, 0, 5), vecmath.V3(0, 0, 0), vecmath.V3(0, 1, 0))
	if !c.takeChanged() {
		t.Error("SetLookAt did not flag a change")
	}
	if c.takeChanged() {
		t.Error("takeChanged did not clear the flag")
	}

	if err := c.SetProjection(vecmath.Perspective(math32.Pi/3, 1, 0.1, 100)); err != nil {
		t.Fatalf("SetProjection() error = %v", err)
	}
	if !c.Changed() {
		t.Error("SetProjection did not flag a change")
	}
}

func TestCamera_InverseProjection(t *testing.T) {
	c, err := NewPerspectiveCamera(
		vecmath.V3(0, 10, 20), vecmath.V3(0, 0, 0), vecmath.V3(0, 1, 0),
		math32.Pi/3, 16.0/9.0, 0.3, 1000,
	)
	if err != nil {
		t.Fatalf("NewPerspectiveCamera() error = %v", err)
	}

	got := c.Projection().Multiply(c.InverseProjection())
	for i := range got {
		want := float32(0)
		if i%5 == 0 {
			want = 1
		}
		if math32.Abs(got[i]-want) > 1e-4 {
			t.Errorf("P * P^-1 [%d] = %v, want %v", i, got[i], want)
		}
	}

	eye := c.CameraToWorld().TransformPoint(vecmath.V3(0, 0, 0))
	if eye != vecmath.V3(0, 10, 20) {
		t.Errorf("camera position = %v, want (0, 10, 20)", eye)
	}
}

func TestCamera_SingularProjection(t *testing.T) {
	c := NewCamera()
	c.ClearChanged()
	if err := c.SetProjection(vecmath.Mat4{}); !errors.Is(err, ErrSingularProjection) {
		t.Errorf("SetProjection(zero) error = %v, want ErrSingularProjection", err)
	}
	if c.Changed() {
		t.Error("rejected projection flagged a change")
	}
	if !c.Projection().IsIdentity() {
		t.Error("rejected projection replaced the previous one")
	}
}

func TestDirectionalLight_Vector(t *testing.T) {
	tests := []struct {
		light DirectionalLight
		want  [4]float32
	}{
		{DirectionalLight{Direction: vecmath.V3(0, -3, 0), Intensity: 2}, [4]float32{0, -1, 0, 2}},
		{DirectionalLight{Direction: vecmath.V3(4, 0, 0), Intensity: 0.5}, [4]float32{1, 0, 0, 0.5}},
		{DirectionalLight{Intensity: 1}, [4]float32{0, 0, 0, 1}},
	}
	for _, tt := range tests {
		if got := tt.light.Vector(); got != tt.want {
			t.Errorf("%+v.Vector() = %v, want %v", tt.light, got, tt.want)
		}
	}
}
