package vecmath

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-4

func assertVec3(t *testing.T, want, got Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "X")
	assert.InDelta(t, want.Y, got.Y, eps, "Y")
	assert.InDelta(t, want.Z, got.Z, eps, "Z")
}

func assertMat4(t *testing.T, want, got Mat4) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], eps, "element %d", i)
	}
}

func TestVec3Ops(t *testing.T) {
	a := V3(1, 2, 3)
	b := V3(4, -5, 6)

	assert.Equal(t, V3(5, -3, 9), a.Add(b))
	assert.Equal(t, V3(-3, 7, -3), a.Sub(b))
	assert.Equal(t, V3(2, 4, 6), a.Scale(2))
	assert.Equal(t, float32(4-10+18), a.Dot(b))
	assert.Equal(t, V3(0, 0, 1), V3(1, 0, 0).Cross(V3(0, 1, 0)))
	assert.Equal(t, float32(9+49+9), a.DistanceSq(b))
	assert.InDelta(t, 1, V3(3, 4, 12).Normalize().Length(), eps)
	assert.Equal(t, Vec3{}, Vec3{}.Normalize())
	assertVec3(t, V3(2.5, -1.5, 4.5), a.Lerp(b, 0.5))
}

func TestMultiplyIdentity(t *testing.T) {
	m := Translate(V3(1, 2, 3)).Multiply(Scale(V3(2, 2, 2)))
	assert.Equal(t, m, Identity().Multiply(m))
	assert.Equal(t, m, m.Multiply(Identity()))
}

func TestTransformOrder(t *testing.T) {
	// Scale is applied first, then the translation.
	m := Translate(V3(10, 0, 0)).Multiply(Scale(V3(2, 2, 2)))
	assertVec3(t, V3(12, 2, 2), m.TransformPoint(V3(1, 1, 1)))
	assertVec3(t, V3(2, 2, 2), m.TransformDir(V3(1, 1, 1)))
}

func TestInvert(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
	}{
		{"identity", Identity()},
		{"translation", Translate(V3(5, -3, 2))},
		{"scale", Scale(V3(2, 4, 0.5))},
		{"rotation", RotateY(0.7)},
		{"composite", Translate(V3(1, 2, 3)).Multiply(RotateY(1.1)).Multiply(Scale(V3(3, 3, 3)))},
		{"perspective", Perspective(math32.Pi/3, 16.0/9.0, 0.3, 1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, ok := tt.m.Invert()
			require.True(t, ok)
			assertMat4(t, Identity(), tt.m.Multiply(inv))
		})
	}
}

func TestInvertSingular(t *testing.T) {
	inv, ok := Scale(V3(1, 0, 1)).Invert()
	assert.False(t, ok)
	assert.True(t, inv.IsIdentity())
	assert.Zero(t, Mat4{}.Determinant())
}

func TestLookAt(t *testing.T) {
	eye := V3(0, 5, 10)
	m := LookAt(eye, V3(0, 5, 0), V3(0, 1, 0))

	assertVec3(t, eye, m.TransformPoint(Vec3{}))
	// Camera space -Z maps to the viewing direction.
	assertVec3(t, V3(0, 0, -1), m.TransformDir(V3(0, 0, -1)))
	assertVec3(t, V3(1, 0, 0), m.TransformDir(V3(1, 0, 0)))
	assertVec3(t, V3(0, 1, 0), m.TransformDir(V3(0, 1, 0)))
}

func TestPerspectiveNearFar(t *testing.T) {
	p := Perspective(math32.Pi/2, 1, 1, 100)

	near := p.MulVec4(V4(0, 0, -1, 1))
	far := p.MulVec4(V4(0, 0, -100, 1))
	assert.InDelta(t, -1, near.Z/near.W, eps)
	assert.InDelta(t, 1, far.Z/far.W, eps)
}

func TestAppendBinary(t *testing.T) {
	b, err := V3(1, 2, 3).AppendBinary(nil)
	require.NoError(t, err)
	assert.Len(t, b, Vec3Size)
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, b[:4])

	b, err = Identity().AppendBinary(b)
	require.NoError(t, err)
	assert.Len(t, b, Vec3Size+Mat4Size)
}
