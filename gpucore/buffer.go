// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"encoding"
	"errors"
	"fmt"
)

// Buffer cache errors.
var (
	// ErrInvalidStride is returned when a non-positive stride is requested.
	ErrInvalidStride = errors.New("gpucore: stride must be positive")

	// ErrStrideMismatch is returned when a record does not encode to exactly
	// stride bytes. The stride is a binary layout contract with the kernel.
	ErrStrideMismatch = errors.New("gpucore: encoded record size does not match stride")
)

// storageUsage is the usage of every reconciled buffer.
const storageUsage = BufferUsageStorage | BufferUsageCopyDst

// Buffer is a GPU storage buffer holding Count records of Stride bytes.
//
// The (Count, Stride) signature always matches the data last uploaded to
// it. A nil *Buffer means no buffer is allocated.
type Buffer struct {
	ID     BufferID
	Count  int
	Stride int
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int {
	if b == nil {
		return 0
	}
	return b.Count * b.Stride
}

// Len returns the number of records, or 0 for a nil buffer.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return b.Count
}

// Matches reports whether b has the given signature.
func (b *Buffer) Matches(count, stride int) bool {
	return b != nil && b.Count == count && b.Stride == stride
}

// Release destroys b if it is allocated. It always returns nil so callers
// can write h = Release(a, h).
func Release(a BufferAllocator, b *Buffer) *Buffer {
	if b != nil && b.ID != InvalidID {
		a.DestroyBuffer(b.ID)
	}
	return nil
}

// Reconcile synchronizes the GPU buffer h with data, a slice of fixed-size
// records of stride bytes each, and returns the buffer to keep.
//
// The policy is:
//   - h is released when data is empty or its (count, stride) signature
//     differs from (len(data), stride)
//   - a buffer of exactly len(data)*stride bytes is allocated when data is
//     non-empty and no buffer survived
//   - data is uploaded on every call with non-empty data
//
// Buffers are therefore only reallocated on a signature change, while the
// content is refreshed every call. Empty data yields a nil buffer.
func Reconcile[T encoding.BinaryAppender](a BufferAllocator, h *Buffer, data []T, stride int) (*Buffer, error) {
	if stride <= 0 {
		return h, fmt.Errorf("%w: %d", ErrInvalidStride, stride)
	}

	if h != nil && (len(data) == 0 || !h.Matches(len(data), stride)) {
		h = Release(a, h)
	}
	if len(data) == 0 {
		return nil, nil
	}

	payload, err := EncodeRecords(data, stride)
	if err != nil {
		return h, err
	}

	if h == nil {
		id, err := a.CreateBuffer(len(payload), storageUsage)
		if err != nil {
			return nil, fmt.Errorf("gpucore: allocate %d x %d byte buffer: %w", len(data), stride, err)
		}
		h = &Buffer{ID: id, Count: len(data), Stride: stride}
	}

	if err := a.WriteBuffer(h.ID, 0, payload); err != nil {
		// Content no longer matches the signature; drop the buffer so the
		// next call starts from a clean allocation.
		Release(a, h)
		return nil, fmt.Errorf("gpucore: upload %d bytes: %w", len(payload), err)
	}
	return h, nil
}

// EncodeRecords concatenates the binary encoding of each record, checking
// that every record occupies exactly stride bytes.
func EncodeRecords[T encoding.BinaryAppender](data []T, stride int) ([]byte, error) {
	buf := make([]byte, 0, len(data)*stride)
	for i, rec := range data {
		before := len(buf)
		var err error
		buf, err = rec.AppendBinary(buf)
		if err != nil {
			return nil, fmt.Errorf("gpucore: encode record %d: %w", i, err)
		}
		if n := len(buf) - before; n != stride {
			return nil, fmt.Errorf("%w: record %d is %d bytes, want %d", ErrStrideMismatch, i, n, stride)
		}
	}
	return buf, nil
}
