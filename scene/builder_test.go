package scene

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/pathtracer/vecmath"
)

// triangleMesh has 3 vertices and 3 indices.
func triangleMesh() *Mesh {
	return &Mesh{
		Positions: []vecmath.Vec3{vecmath.V3(0, 0, 0), vecmath.V3(1, 0, 0), vecmath.V3(0, 1, 0)},
		Indices:   []int32{0, 1, 2},
	}
}

// quadMesh has 4 vertices and 6 indices.
func quadMesh() *Mesh {
	return &Mesh{
		Positions: []vecmath.Vec3{
			vecmath.V3(0, 0, 0), vecmath.V3(1, 0, 0),
			vecmath.V3(1, 1, 0), vecmath.V3(0, 1, 0),
		},
		Indices: []int32{0, 1, 2, 0, 2, 3},
	}
}

func TestBuilderRebuildOffsets(t *testing.T) {
	reg := NewRegistry()
	a := NewObject(triangleMesh(), vecmath.Translate(vecmath.V3(1, 2, 3)))
	b := NewObject(quadMesh(), vecmath.Identity())
	require.True(t, reg.Register(a))
	require.True(t, reg.Register(b))

	var bld Builder
	require.True(t, bld.Rebuild(reg))

	assert.Len(t, bld.Vertices, 7)
	assert.Len(t, bld.Indices, 9)
	require.Len(t, bld.Objects, 2)

	objA, objB := bld.Objects[0], bld.Objects[1]
	assert.Equal(t, int32(0), objA.IndexOffset)
	assert.Equal(t, int32(3), objA.IndexCount)
	assert.Equal(t, a.LocalToWorld(), objA.LocalToWorld)
	for _, idx := range bld.Indices[objA.IndexOffset : objA.IndexOffset+objA.IndexCount] {
		assert.Less(t, idx, Index(3))
	}

	assert.Equal(t, int32(3), objB.IndexOffset)
	assert.Equal(t, int32(6), objB.IndexCount)
	for _, idx := range bld.Indices[objB.IndexOffset : objB.IndexOffset+objB.IndexCount] {
		assert.GreaterOrEqual(t, idx, Index(3))
		assert.Less(t, idx, Index(7))
	}
	assert.Equal(t, []Index{0, 1, 2, 3, 4, 5, 3, 5, 6}, bld.Indices)

	assert.False(t, reg.Dirty())
}

func TestBuilderRebuildOnlyWhenDirty(t *testing.T) {
	reg := NewRegistry()
	var bld Builder

	assert.False(t, bld.Rebuild(reg), "a new registry is clean")

	obj := NewObject(triangleMesh(), vecmath.Identity())
	reg.Register(obj)
	assert.True(t, bld.Rebuild(reg))
	assert.False(t, bld.Rebuild(reg))

	// Moving an object needs an explicit MarkDirty.
	obj.SetLocalToWorld(vecmath.Translate(vecmath.V3(0, 5, 0)))
	assert.False(t, bld.Rebuild(reg))
	reg.MarkDirty()
	require.True(t, bld.Rebuild(reg))
	assert.Equal(t, obj.LocalToWorld(), bld.Objects[0].LocalToWorld)

	reg.Unregister(obj)
	require.True(t, bld.Rebuild(reg))
	assert.Empty(t, bld.Objects)
	assert.Empty(t, bld.Vertices)
	assert.Empty(t, bld.Indices)
}

func TestBuilderSkipsInvalidMeshes(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewObject(&Mesh{Positions: []vecmath.Vec3{{}}, Indices: []int32{0, 1, 2}}, vecmath.Identity()))
	reg.Register(NewObject(nil, vecmath.Identity()))
	reg.Register(NewObject(quadMesh(), vecmath.Identity()))

	var bld Builder
	require.True(t, bld.Rebuild(reg))
	require.Len(t, bld.Objects, 1)
	assert.Equal(t, int32(0), bld.Objects[0].IndexOffset)
	assert.Len(t, bld.Vertices, 4)
}

func TestRegistryMembership(t *testing.T) {
	reg := NewRegistry()
	var bld Builder
	a := NewObject(triangleMesh(), vecmath.Identity())
	b := NewObject(quadMesh(), vecmath.Identity())
	c := NewObject(triangleMesh(), vecmath.Translate(vecmath.V3(0, 0, 9)))

	assert.True(t, reg.Register(a))
	assert.True(t, reg.Register(b))
	assert.True(t, reg.Register(c))
	assert.False(t, reg.Register(a), "duplicate registration")
	assert.False(t, reg.Register(nil))
	assert.Equal(t, 3, reg.Len())

	bld.Rebuild(reg)
	assert.False(t, reg.Unregister(NewObject(triangleMesh(), vecmath.Identity())), "unknown member")
	assert.False(t, reg.Dirty())

	assert.True(t, reg.Unregister(b))
	assert.True(t, reg.Dirty())
	assert.Equal(t, []Renderable{a, c}, reg.Members())

	// Order survives removal and re-registration.
	assert.True(t, reg.Register(b))
	assert.Equal(t, []Renderable{a, c, b}, reg.Members())
	assert.True(t, reg.Unregister(a))
	assert.True(t, reg.Unregister(b))
	assert.Equal(t, []Renderable{c}, reg.Members())
}

func TestBuildersShareRegistry(t *testing.T) {
	reg := NewRegistry()
	var a, b Builder

	reg.Register(NewObject(triangleMesh(), vecmath.Identity()))
	require.True(t, a.Rebuild(reg))
	assert.False(t, reg.Dirty())
	require.True(t, b.Rebuild(reg), "second builder still sees the change")
	assert.Len(t, b.Objects, 1)
	assert.False(t, a.Rebuild(reg))
	assert.False(t, b.Rebuild(reg))

	gen := reg.Generation()
	reg.MarkDirty()
	assert.Greater(t, reg.Generation(), gen)
	assert.True(t, a.Rebuild(reg))
	assert.True(t, b.Rebuild(reg))

	// Invalidate only affects its own builder.
	a.Invalidate()
	assert.False(t, reg.Dirty())
	assert.False(t, b.Rebuild(reg))
	assert.True(t, a.Rebuild(reg))
	assert.False(t, a.Rebuild(reg))
}

// sliceRenderable is a value type that cannot be used as a map key.
type sliceRenderable struct {
	meshes []*Mesh
}

func (s sliceRenderable) Mesh() *Mesh                { return s.meshes[0] }
func (s sliceRenderable) LocalToWorld() vecmath.Mat4 { return vecmath.Identity() }

func TestRegistryRejectsNonComparable(t *testing.T) {
	reg := NewRegistry()
	r := sliceRenderable{meshes: []*Mesh{triangleMesh()}}
	assert.NotPanics(t, func() {
		assert.False(t, reg.Register(r))
		assert.False(t, reg.Unregister(r))
	})
	assert.Equal(t, 0, reg.Len())
	assert.False(t, reg.Dirty())
}

func TestRegistryZeroValue(t *testing.T) {
	var reg Registry
	assert.True(t, reg.Register(NewObject(triangleMesh(), vecmath.Identity())))
	assert.True(t, reg.Dirty())
}

func TestRegistryConcurrentRebuild(t *testing.T) {
	reg := NewRegistry()
	var bld Builder

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				reg.Register(NewObject(triangleMesh(), vecmath.Identity()))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

loop:
	for {
		select {
		case <-done:
			break loop
		default:
			if bld.Rebuild(reg) {
				// A rebuild must never see a torn registry.
				assert.Len(t, bld.Vertices, 3*len(bld.Objects))
			}
		}
	}

	bld.Rebuild(reg)
	assert.Len(t, bld.Objects, workers*perWorker)
	assert.Len(t, bld.Indices, 3*workers*perWorker)
}

func TestMeshObjectAppendBinary(t *testing.T) {
	obj := MeshObject{LocalToWorld: vecmath.Identity(), IndexOffset: 3, IndexCount: 6}
	b, err := obj.AppendBinary(nil)
	require.NoError(t, err)
	require.Len(t, b, MeshObjectStride)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[64:]))
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(b[68:]))

	ib, err := Index(-1).AppendBinary(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, ib)
}

func TestMeshValidate(t *testing.T) {
	assert.NoError(t, quadMesh().Validate())
	assert.ErrorIs(t, (&Mesh{Indices: []int32{0, 1}}).Validate(), ErrInvalidMesh)
	assert.ErrorIs(t, (&Mesh{Positions: make([]vecmath.Vec3, 2), Indices: []int32{0, 1, 2}}).Validate(), ErrInvalidMesh)
	assert.ErrorIs(t, (&Mesh{Positions: make([]vecmath.Vec3, 3), Indices: []int32{0, -1, 2}}).Validate(), ErrInvalidMesh)
}
