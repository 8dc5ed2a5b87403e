// Package pinnedbuffer implements a dynamically-resizable generic buffer
// whose backing array may be pinned for zero-copy DMA when a pin
// provider is available (spec §4.I). The repair driver does not use it:
// its receive buffer is a plain byte slice.
//
// The growth discipline — track capacity, reallocate only when the
// backing array must move, treat the move as the only observable event
// — is adapted from prxssh-rabbit's pkg/availabilitybucket.Bucket, which
// tracks its own backing-slice identity per bucket rather than
// reallocating on every mutation. Viewing the backing array as a byte
// region for the Pinner uses unsafe, the same way calvinalkan-agent-task's
// pkg/mddb/validate.go reinterprets a typed slice's memory directly
// rather than copying it.
package pinnedbuffer

import "unsafe"

// Pinner pins and unpins a backing region for DMA. A nil Pinner means no
// DMA-capable backend is present; the buffer behaves like a plain slice.
type Pinner interface {
	Pin(region []byte) error
	Unpin(region []byte) error
}

// Buffer is a resizable buffer of T with optional DMA pinning.
type Buffer[T any] struct {
	data     []T
	pinner   Pinner
	pinnable bool
	pinned   bool
}

// New returns a Buffer with the given initial capacity. pinner may be
// nil if no DMA-capable backend is present.
func New[T any](capacity int, pinner Pinner) *Buffer[T] {
	return &Buffer[T]{
		data:   make([]T, 0, capacity),
		pinner: pinner,
	}
}

// SetPinnable records the caller's intent to pin this buffer's backing
// region whenever a DMA-capable backend is present. It takes effect on
// the next growth that changes the backing pointer.
func (b *Buffer[T]) SetPinnable(pinnable bool) {
	b.pinnable = pinnable
}

// Len returns the number of elements currently stored.
func (b *Buffer[T]) Len() int {
	return len(b.data)
}

// Pinned reports whether the backing region is currently pinned.
func (b *Buffer[T]) Pinned() bool {
	return b.pinned
}

// At returns the element at index i.
func (b *Buffer[T]) At(i int) T {
	return b.data[i]
}

// Set overwrites the element at index i.
func (b *Buffer[T]) Set(i int, v T) {
	b.data[i] = v
}

// Push appends v, growing and re-pinning the backing region if its
// pointer moves.
func (b *Buffer[T]) Push(v T) error {
	oldData := b.data
	b.data = append(b.data, v)
	return b.rePinIfMoved(oldData)
}

// Grow ensures capacity for at least n more elements, re-pinning if the
// backing region moves. Callers that know their eventual size up front
// should call this once instead of relying on repeated Push growth.
func (b *Buffer[T]) Grow(n int) error {
	oldData := b.data
	if cap(b.data)-len(b.data) < n {
		grown := make([]T, len(b.data), len(b.data)+n)
		copy(grown, b.data)
		b.data = grown
	}
	return b.rePinIfMoved(oldData)
}

// Iterate calls fn for every element in order. fn returning false stops
// iteration early.
func (b *Buffer[T]) Iterate(fn func(i int, v T) bool) {
	for i, v := range b.data {
		if !fn(i, v) {
			return
		}
	}
}

// Reset truncates the buffer to zero length without releasing capacity
// or changing pin state — no backing-pointer change means no re-pin.
func (b *Buffer[T]) Reset() {
	b.data = b.data[:0]
}

// Close unpins the backing region if it's pinned. Safe to call on an
// already-unpinned buffer.
func (b *Buffer[T]) Close() error {
	if !b.pinned || b.pinner == nil {
		return nil
	}
	err := b.pinner.Unpin(byteView(b.data))
	b.pinned = false
	return err
}

// rePinIfMoved unpins the old region (if it was pinned) and pins the new
// one (if pinning was requested and a provider is present) exactly when
// the backing array's identity changed. Growth that reuses the existing
// backing array — append within capacity — is a no-op here.
func (b *Buffer[T]) rePinIfMoved(oldData []T) error {
	if sameBacking(oldData, b.data) {
		return nil
	}

	if b.pinned && b.pinner != nil {
		if err := b.pinner.Unpin(byteView(oldData)); err != nil {
			return err
		}
		b.pinned = false
	}

	if b.pinnable && b.pinner != nil && len(b.data) > 0 {
		if err := b.pinner.Pin(byteView(b.data)); err != nil {
			return err
		}
		b.pinned = true
	}

	return nil
}

func sameBacking[T any](a, b []T) bool {
	if cap(a) == 0 || cap(b) == 0 {
		return cap(a) == cap(b) && len(a) == len(b)
	}
	return &(a[:1][0]) == &(b[:1][0])
}

// byteView reinterprets a typed slice's backing array as a byte region,
// for handing to a Pinner that operates on raw memory.
func byteView[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*size)
}
