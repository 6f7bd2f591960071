package gpu

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// compileOrSkip compiles WGSL and skips the test on features naga does not
// implement yet.
func compileOrSkip(t *testing.T, source string) []uint32 {
	t.Helper()
	spirv, err := CompileWGSL(source)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
			t.Skipf("Skipping: naga feature not yet implemented: %v", err)
		}
		t.Fatalf("CompileWGSL() error = %v", err)
	}
	return spirv
}

func TestCompileWGSL_EmbeddedShaders(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"pathtrace", pathTraceShaderWGSL},
		{"accumulate", accumulateShaderWGSL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spirv := compileOrSkip(t, tt.source)
			if len(spirv) < 5 {
				t.Fatalf("SPIR-V has %d words, want a header at least", len(spirv))
			}
			if spirv[0] != 0x07230203 {
				t.Errorf("SPIR-V magic = %#x, want 0x07230203", spirv[0])
			}
		})
	}
}

func TestCompileWGSL_SyntaxError(t *testing.T) {
	if _, err := CompileWGSL("fn main( {"); err == nil {
		t.Error("CompileWGSL() of invalid source expected error")
	}
}

func TestCompileWGSL_Cached(t *testing.T) {
	first := compileOrSkip(t, accumulateShaderWGSL)
	_, misses := spirvCache.Stats()
	second := compileOrSkip(t, accumulateShaderWGSL)
	if _, after := spirvCache.Stats(); after != misses {
		t.Errorf("second compile missed the cache (%d -> %d misses)", misses, after)
	}
	if &first[0] != &second[0] {
		t.Error("second compile returned a different slice")
	}
}

func TestEmbeddedShaders_WorkgroupSize(t *testing.T) {
	// The dispatch grid assumes 8x8 tiles.
	for name, src := range map[string]string{
		"pathtrace":  pathTraceShaderWGSL,
		"accumulate": accumulateShaderWGSL,
	} {
		if !strings.Contains(src, "@workgroup_size(8, 8, 1)") {
			t.Errorf("%s.wgsl does not declare an 8x8 workgroup", name)
		}
	}
}

func TestPathTraceShader_SphereColor(t *testing.T) {
	// Generated metals have zero albedo, so the default kernel has to
	// shade with albedo (words 4..6) plus specular (words 7..9).
	for _, want := range []string{"load_vec3(base + 4u)", "load_vec3(base + 7u)"} {
		if !strings.Contains(pathTraceShaderWGSL, want) {
			t.Errorf("pathtrace.wgsl does not read %s", want)
		}
	}
}

func TestNewKernels_Noop(t *testing.T) {
	compileOrSkip(t, pathTraceShaderWGSL)
	compileOrSkip(t, accumulateShaderWGSL)

	a := newNoopAdapter(t)
	k, err := NewPathTraceKernel(a, "", "")
	if err != nil {
		t.Fatalf("NewPathTraceKernel() error = %v", err)
	}
	defer k.Close()

	b, err := NewBlendKernel(a)
	if err != nil {
		t.Fatalf("NewBlendKernel() error = %v", err)
	}
	defer b.Close()
}

func TestLoadPathTraceKernel(t *testing.T) {
	a := newNoopAdapter(t)

	if _, err := LoadPathTraceKernel(a, filepath.Join(t.TempDir(), "missing.wgsl"), ""); err == nil {
		t.Error("LoadPathTraceKernel() of a missing file expected error")
	}

	compileOrSkip(t, pathTraceShaderWGSL)
	path := filepath.Join(t.TempDir(), "kernel.wgsl")
	if err := os.WriteFile(path, []byte(PathTraceSource()), 0o600); err != nil {
		t.Fatal(err)
	}
	k, err := LoadPathTraceKernel(a, path, "")
	if err != nil {
		t.Fatalf("LoadPathTraceKernel() error = %v", err)
	}
	k.Close()
}
