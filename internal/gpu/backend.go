package gpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// backendNames maps command-line names to hal backends.
var backendNames = map[string]gputypes.Backend{
	"vulkan": gputypes.BackendVulkan,
	"metal":  gputypes.BackendMetal,
	"dx12":   gputypes.BackendDX12,
	"gl":     gputypes.BackendGL,
	"noop":   gputypes.BackendEmpty,
}

// backendPriority is the order Open tries backends in. The noop backend is
// never picked automatically.
var backendPriority = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
}

// ParseBackend returns the backend for a name such as "vulkan" or "noop".
func ParseBackend(name string) (gputypes.Backend, error) {
	b, ok := backendNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("gpu: unknown backend %q", name)
	}
	return b, nil
}

// Available returns the names of the registered backends.
func Available() []string {
	var names []string
	for name, b := range backendNames {
		if _, ok := hal.GetBackend(b); ok {
			names = append(names, name)
		}
	}
	return names
}

// Open creates a standalone device on the first registered backend, in
// priority order, that yields one.
func Open() (*Device, error) {
	var errs []error
	for _, b := range backendPriority {
		if _, ok := hal.GetBackend(b); !ok {
			continue
		}
		d, err := OpenBackend(b)
		if err == nil {
			return d, nil
		}
		slogger().Warn("gpu: backend unusable", "backend", b.String(), "error", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("gpu: no hal backend registered")
	}
	return nil, errors.Join(errs...)
}
