// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/pathtracer/vecmath"
)

// ErrOBJSyntax is returned for malformed Wavefront OBJ input.
var ErrOBJSyntax = errors.New("scene: obj syntax error")

// LoadOBJFile reads a Wavefront OBJ file. See LoadOBJ.
func LoadOBJFile(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scene: open obj: %w", err)
	}
	defer f.Close()

	mesh, err := LoadOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mesh, nil
}

// LoadOBJ parses the geometry of a Wavefront OBJ stream: vertex positions
// ("v") and faces ("f"). Polygons are triangulated as fans. Texture
// coordinates, normals, groups and materials are ignored.
func LoadOBJ(r io.Reader) (*Mesh, error) {
	mesh := &Mesh{}
	sc := bufio.NewScanner(r)
	line := 0

	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrOBJSyntax, line)
			}
			var xyz [3]float32
			for i := range xyz {
				f, err := strconv.ParseFloat(fields[i+1], 32)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrOBJSyntax, line, err)
				}
				xyz[i] = float32(f)
			}
			mesh.Positions = append(mesh.Positions, vecmath.V3(xyz[0], xyz[1], xyz[2]))

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: face needs at least 3 vertices", ErrOBJSyntax, line)
			}
			face := make([]int32, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				idx, err := parseVertexRef(ref, len(mesh.Positions))
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrOBJSyntax, line, err)
				}
				face = append(face, idx)
			}
			for i := 1; i+1 < len(face); i++ {
				mesh.Indices = append(mesh.Indices, face[0], face[i], face[i+1])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scene: read obj: %w", err)
	}
	if err := mesh.Validate(); err != nil {
		return nil, err
	}
	return mesh, nil
}

// parseVertexRef parses the position part of a face vertex ("7", "7/1",
// "7//3", "-1") into a zero-based index. Negative references count back
// from the last vertex defined so far.
func parseVertexRef(ref string, defined int) (int32, error) {
	pos, _, _ := strings.Cut(ref, "/")
	n, err := strconv.Atoi(pos)
	if err != nil {
		return 0, fmt.Errorf("bad vertex reference %q", ref)
	}
	switch {
	case n > 0 && n <= defined:
		return int32(n - 1), nil
	case n < 0 && -n <= defined:
		return int32(defined + n), nil
	default:
		return 0, fmt.Errorf("vertex reference %d out of range (have %d vertices)", n, defined)
	}
}
