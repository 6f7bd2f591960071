// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"reflect"
	"sync"
)

// Registry is an ordered set of renderables plus a generation counter.
//
// Every membership change and every MarkDirty bumps the generation. Each
// Builder remembers the generation it last flattened, so one registry can
// feed several renderers and each of them rebuilds its own buffers.
// Membership changes may come from any goroutine; a rebuild holds the
// registry lock for its whole duration so it never observes a half-applied
// change.
type Registry struct {
	mu      sync.Mutex
	members []Renderable
	index   map[Renderable]int
	gen     uint64
	built   uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[Renderable]int)}
}

// Register appends r to the registry. It reports whether the registry
// changed; registering a member twice is a no-op. Members are keyed by
// identity, so values of non-comparable types are rejected.
func (reg *Registry) Register(r Renderable) bool {
	if r == nil || !reflect.TypeOf(r).Comparable() {
		return false
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.index == nil {
		reg.index = make(map[Renderable]int)
	}
	if _, ok := reg.index[r]; ok {
		return false
	}
	reg.index[r] = len(reg.members)
	reg.members = append(reg.members, r)
	reg.gen++
	return true
}

// Unregister removes r, keeping the order of the remaining members. It
// reports whether the registry changed.
func (reg *Registry) Unregister(r Renderable) bool {
	if r == nil || !reflect.TypeOf(r).Comparable() {
		return false
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	i, ok := reg.index[r]
	if !ok {
		return false
	}
	delete(reg.index, r)
	reg.members = append(reg.members[:i], reg.members[i+1:]...)
	for j := i; j < len(reg.members); j++ {
		reg.index[reg.members[j]] = j
	}
	reg.gen++
	return true
}

// Dirty reports whether the registry changed since the latest rebuild by
// any builder.
func (reg *Registry) Dirty() bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.gen != reg.built
}

// Generation returns the change counter of the registry.
func (reg *Registry) Generation() uint64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.gen
}

// MarkDirty forces the next Rebuild of every builder, for example after a
// registered object's transform changed.
func (reg *Registry) MarkDirty() {
	reg.mu.Lock()
	reg.gen++
	reg.mu.Unlock()
}

// Len returns the number of registered renderables.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.members)
}

// Members returns a snapshot of the registered renderables in
// registration order.
func (reg *Registry) Members() []Renderable {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return append([]Renderable(nil), reg.members...)
}
