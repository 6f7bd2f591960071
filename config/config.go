// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads path-tracer settings from TOML or YAML files.
//
// A file only needs the keys it changes: decoding starts from Default, and
// unknown keys are rejected so typos do not go unnoticed. Relative paths
// in a file are resolved against the file's directory.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/pathtracer/scene"
	"github.com/gogpu/pathtracer/vecmath"
)

// ErrInvalid is wrapped by every Validate error.
var ErrInvalid = errors.New("config: invalid configuration")

// Format is a configuration file format.
type Format int

const (
	TOML Format = iota
	YAML
)

// Config is the complete path-tracer configuration.
type Config struct {
	Scene  Scene  `toml:"scene" yaml:"scene"`
	Render Render `toml:"render" yaml:"render"`
	Camera Camera `toml:"camera" yaml:"camera"`
	Light  Light  `toml:"light" yaml:"light"`
	Meshes []Mesh `toml:"meshes" yaml:"meshes"`
}

// Scene configures sphere generation.
type Scene struct {
	Seed               int64   `toml:"seed" yaml:"seed"`
	Count              int     `toml:"count" yaml:"count"`
	RadiusMin          float32 `toml:"radius_min" yaml:"radius_min"`
	RadiusMax          float32 `toml:"radius_max" yaml:"radius_max"`
	PlacementRadius    float32 `toml:"placement_radius" yaml:"placement_radius"`
	DielectricFraction float32 `toml:"dielectric_fraction" yaml:"dielectric_fraction"`

	// Policy is "scatter" or "lights".
	Policy string `toml:"policy" yaml:"policy"`
}

// Render configures the output and the kernels.
type Render struct {
	Width   int `toml:"width" yaml:"width"`
	Height  int `toml:"height" yaml:"height"`
	Samples int `toml:"samples" yaml:"samples"`

	// Skybox is an image file. Empty selects a procedural sky.
	Skybox string `toml:"skybox" yaml:"skybox"`

	// SkyboxMaxDim caps the skybox size; larger images are downscaled.
	// Zero uses the device limit.
	SkyboxMaxDim int `toml:"skybox_max_dim" yaml:"skybox_max_dim"`

	// Kernel is a WGSL path-trace kernel. Empty selects the built-in one.
	Kernel     string `toml:"kernel" yaml:"kernel"`
	EntryPoint string `toml:"entry_point" yaml:"entry_point"`

	Output string `toml:"output" yaml:"output"`
}

// Camera is a perspective camera looking at a target.
type Camera struct {
	Eye    [3]float32 `toml:"eye" yaml:"eye"`
	Target [3]float32 `toml:"target" yaml:"target"`

	// FovY is the vertical field of view in degrees.
	FovY float32 `toml:"fov_y" yaml:"fov_y"`
	Near float32 `toml:"near" yaml:"near"`
	Far  float32 `toml:"far" yaml:"far"`
}

// Light is the directional light.
type Light struct {
	Direction [3]float32 `toml:"direction" yaml:"direction"`
	Intensity float32    `toml:"intensity" yaml:"intensity"`
}

// Mesh places an OBJ file in the scene.
type Mesh struct {
	Path     string     `toml:"path" yaml:"path"`
	Position [3]float32 `toml:"position" yaml:"position"`
	Scale    float32    `toml:"scale" yaml:"scale"`

	// RotateY is a rotation about the Y axis in degrees.
	RotateY float32 `toml:"rotate_y" yaml:"rotate_y"`
}

// Default returns the built-in configuration: 40 metal spheres with radii
// 1 to 15 scattered over a disk of radius 100.
func Default() *Config {
	return &Config{
		Scene: Scene{
			Seed:            0,
			Count:           40,
			RadiusMin:       1,
			RadiusMax:       15,
			PlacementRadius: 100,
			Policy:          scene.PolicyScatter.String(),
		},
		Render: Render{
			Width:   640,
			Height:  360,
			Samples: 64,
			Output:  "pathtrace.png",
		},
		Camera: Camera{
			Eye:    [3]float32{0, 60, -160},
			Target: [3]float32{0, 0, 0},
			FovY:   60,
			Near:   0.3,
			Far:    1000,
		},
		Light: Light{
			Direction: [3]float32{-0.4, -1, 0.6},
			Intensity: 1,
		},
	}
}

// FormatOf returns the format for a file name.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return TOML, fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
}

// Load reads, resolves and validates the configuration file at path.
func Load(path string) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes a configuration over Default. It neither resolves paths
// nor validates.
func Decode(r io.Reader, format Format) (*Config, error) {
	cfg := Default()
	switch format {
	case TOML:
		if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(cfg); err != nil {
			return nil, err
		}
	case YAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("config: unknown format %d", format)
	}
	return cfg, nil
}

// Encode writes c in the given format.
func (c *Config) Encode(w io.Writer, format Format) error {
	switch format {
	case TOML:
		return toml.NewEncoder(w).Encode(c)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("config: unknown format %d", format)
}

func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Render.Skybox = abs(c.Render.Skybox)
	c.Render.Kernel = abs(c.Render.Kernel)
	c.Render.Output = abs(c.Render.Output)
	for i := range c.Meshes {
		c.Meshes[i].Path = abs(c.Meshes[i].Path)
	}
}

// Validate reports structural problems: an unusable resolution or sample
// count, an unknown policy, or an input file that cannot be read. Scene
// values that merely produce a sparse or empty scene are accepted.
func (c *Config) Validate() error {
	var errs []error
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		errs = append(errs, fmt.Errorf("render size %dx%d must be positive", c.Render.Width, c.Render.Height))
	}
	if c.Render.Samples <= 0 {
		errs = append(errs, fmt.Errorf("render.samples %d must be positive", c.Render.Samples))
	}
	if c.Render.SkyboxMaxDim < 0 {
		errs = append(errs, fmt.Errorf("render.skybox_max_dim %d is negative", c.Render.SkyboxMaxDim))
	}
	if _, err := scene.ParsePolicy(c.Scene.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.Camera.FovY <= 0 || c.Camera.FovY >= 180 {
		errs = append(errs, fmt.Errorf("camera.fov_y %g must be in (0, 180)", c.Camera.FovY))
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		errs = append(errs, fmt.Errorf("camera near/far %g/%g must satisfy 0 < near < far", c.Camera.Near, c.Camera.Far))
	}

	files := []string{c.Render.Skybox, c.Render.Kernel}
	for _, m := range c.Meshes {
		if m.Path == "" {
			errs = append(errs, errors.New("mesh without path"))
		}
		files = append(files, m.Path)
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// GenerateConfig returns the scene generator settings.
func (c *Config) GenerateConfig() (scene.GenerateConfig, error) {
	policy, err := scene.ParsePolicy(c.Scene.Policy)
	if err != nil {
		return scene.GenerateConfig{}, err
	}
	return scene.GenerateConfig{
		Seed:               c.Scene.Seed,
		Count:              c.Scene.Count,
		RadiusMin:          c.Scene.RadiusMin,
		RadiusMax:          c.Scene.RadiusMax,
		PlacementRadius:    c.Scene.PlacementRadius,
		DielectricFraction: c.Scene.DielectricFraction,
		Policy:             policy,
	}, nil
}

// Transform returns the mesh's local-to-world matrix: scale, then
// rotation about Y, then translation. A zero scale means 1.
func (m Mesh) Transform() vecmath.Mat4 {
	s := m.Scale
	if s == 0 {
		s = 1
	}
	return vecmath.Translate(Vec3(m.Position)).
		Multiply(vecmath.RotateY(m.RotateY * degToRad)).
		Multiply(vecmath.Scale(vecmath.Splat3(s)))
}

const degToRad = math.Pi / 180

// FovYRadians returns the vertical field of view in radians.
func (c Camera) FovYRadians() float32 {
	return c.FovY * degToRad
}

// Vec3 converts a configuration triple.
func Vec3(v [3]float32) vecmath.Vec3 {
	return vecmath.V3(v[0], v[1], v[2])
}
