package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/pathtracer/scene"
	"github.com/gogpu/pathtracer/vecmath"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	gen, err := cfg.GenerateConfig()
	require.NoError(t, err)
	assert.Equal(t, scene.GenerateConfig{
		Count:           40,
		RadiusMin:       1,
		RadiusMax:       15,
		PlacementRadius: 100,
		Policy:          scene.PolicyScatter,
	}, gen)
}

func TestDecodeTOML(t *testing.T) {
	src := `
[scene]
seed = 42
count = 5
policy = "lights"
dielectric_fraction = 0.5

[render]
width = 320
`
	cfg, err := Decode(strings.NewReader(src), TOML)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Scene.Seed)
	assert.Equal(t, 5, cfg.Scene.Count)
	assert.Equal(t, float32(0.5), cfg.Scene.DielectricFraction)
	assert.Equal(t, 320, cfg.Render.Width)
	assert.Equal(t, 360, cfg.Render.Height, "unset keys keep defaults")
	assert.Equal(t, float32(15), cfg.Scene.RadiusMax)

	gen, err := cfg.GenerateConfig()
	require.NoError(t, err)
	assert.Equal(t, scene.PolicyLights, gen.Policy)
}

func TestDecodeYAML(t *testing.T) {
	src := `
scene:
  count: 7
  radius_min: 2
camera:
  eye: [1, 2, 3]
meshes:
  - path: bunny.obj
    scale: 10
`
	cfg, err := Decode(strings.NewReader(src), YAML)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Scene.Count)
	assert.Equal(t, float32(2), cfg.Scene.RadiusMin)
	assert.Equal(t, [3]float32{1, 2, 3}, cfg.Camera.Eye)
	require.Len(t, cfg.Meshes, 1)
	assert.Equal(t, float32(10), cfg.Meshes[0].Scale)
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""), YAML)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecodeUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("[scene]\ncoutn = 3\n"), TOML)
	assert.Error(t, err)

	_, err = Decode(strings.NewReader("scene:\n  coutn: 3\n"), YAML)
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	want := Default()
	want.Scene.Seed = 7
	want.Meshes = []Mesh{{Path: "a.obj", Position: [3]float32{1, 0, 0}, Scale: 2}}

	for _, format := range []Format{TOML, YAML} {
		var buf bytes.Buffer
		require.NoError(t, want.Encode(&buf, format))
		got, err := Decode(&buf, format)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFormatOf(t *testing.T) {
	f, err := FormatOf("a/b.TOML")
	require.NoError(t, err)
	assert.Equal(t, TOML, f)
	f, err = FormatOf("x.yml")
	require.NoError(t, err)
	assert.Equal(t, YAML, f)
	_, err = FormatOf("x.json")
	assert.Error(t, err)
}

func TestLoadResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quad.obj", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")
	path := writeFile(t, dir, "scene.toml", `
[render]
output = "out/frame.png"

[[meshes]]
path = "quad.obj"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "quad.obj"), cfg.Meshes[0].Path)
	assert.Equal(t, filepath.Join(dir, "out", "frame.png"), cfg.Render.Output)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero width", func(c *Config) { c.Render.Width = 0 }},
		{"no samples", func(c *Config) { c.Render.Samples = 0 }},
		{"bad policy", func(c *Config) { c.Scene.Policy = "spiral" }},
		{"fov", func(c *Config) { c.Camera.FovY = 180 }},
		{"near far", func(c *Config) { c.Camera.Far = c.Camera.Near }},
		{"missing skybox", func(c *Config) { c.Render.Skybox = "/nonexistent/sky.png" }},
		{"mesh without path", func(c *Config) { c.Meshes = []Mesh{{}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestValidateAcceptsDegenerateScene(t *testing.T) {
	cfg := Default()
	cfg.Scene.Count = -3
	cfg.Scene.RadiusMin, cfg.Scene.RadiusMax = 10, 1
	assert.NoError(t, cfg.Validate())
}

func TestMeshTransform(t *testing.T) {
	m := Mesh{Position: [3]float32{1, 2, 3}, Scale: 2, RotateY: 90}
	p := m.Transform().TransformPoint(vecmath.V3(1, 0, 0))
	assert.InDelta(t, 1, p.X, 1e-5)
	assert.InDelta(t, 2, p.Y, 1e-5)
	assert.InDelta(t, 1, p.Z, 1e-5)

	assert.True(t, Mesh{}.Transform().IsIdentity())
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scene.yaml", "scene:\n  count: 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config, err error) {
			if err == nil {
				reloaded <- c
			}
		})
	}()

	// Give the watcher time to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			writeFile(t, dir, "scene.yaml", "scene:\n  count: 9\n")
			continue
		case c := <-reloaded:
			assert.Equal(t, 9, c.Scene.Count)
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
		break
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
