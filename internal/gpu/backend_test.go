package gpu

import (
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    gputypes.Backend
		wantErr bool
	}{
		{"vulkan", gputypes.BackendVulkan, false},
		{" Metal ", gputypes.BackendMetal, false},
		{"DX12", gputypes.BackendDX12, false},
		{"gl", gputypes.BackendGL, false},
		{"noop", gputypes.BackendEmpty, false},
		{"opengl4", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBackend(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBackend(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseBackend(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestAvailable_IncludesNoop(t *testing.T) {
	if !slices.Contains(Available(), "noop") {
		t.Errorf("Available() = %v, want noop registered by the test imports", Available())
	}
}

func TestBackendPriority_SkipsNoop(t *testing.T) {
	if slices.Contains(backendPriority, gputypes.BackendEmpty) {
		t.Error("noop backend must not be selected automatically")
	}
}
