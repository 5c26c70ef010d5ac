package surge

import "sync/atomic"

// Buffer is a reference-counted immutable byte region.
//
// Once constructed, a Buffer's contents never change; copies are cheap
// because they only bump a reference count. This is what makes
// broadcasting a single payload to many WebSocket sessions cheap: the
// Registry hands every recipient the same Buffer rather than copying the
// payload once per recipient.
//
// Buffer is safe for concurrent use: Bytes is read-only and Retain/Release
// only touch an atomic counter.
type Buffer struct {
	data []byte
	refs *atomic.Int32
}

// NewBufferFromString copies s into a new, independently owned Buffer.
func NewBufferFromString(s string) *Buffer {
	return newBuffer([]byte(s))
}

// NewBufferFromBytes copies b into a new, independently owned Buffer. The
// caller's slice remains theirs to mutate or reuse afterward.
func NewBufferFromBytes(b []byte) *Buffer {
	cp := make([]byte, len(b))
	copy(cp, b)
	return newBuffer(cp)
}

// AdoptBuffer wraps b without copying. The caller must not mutate b after
// this call; ownership of the backing array transfers to the Buffer.
func AdoptBuffer(b []byte) *Buffer {
	return newBuffer(b)
}

func newBuffer(b []byte) *Buffer {
	refs := &atomic.Int32{}
	refs.Store(1)
	return &Buffer{data: b, refs: refs}
}

// Bytes returns the buffer's contents. The returned slice must not be
// mutated by the caller.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Retain increments the reference count and returns the same Buffer, so
// call sites can write `frame := buf.Retain()` when handing the buffer to
// a second owner.
func (b *Buffer) Retain() *Buffer {
	if b != nil {
		b.refs.Add(1)
	}
	return b
}

// Release decrements the reference count. Buffer has no finalizer — the
// backing array is simply left for the garbage collector once the last
// reference drops; Release exists so callers can track fan-out lifetimes
// symmetrically with Retain where that bookkeeping matters (tests, and the
// Registry's broadcast path).
func (b *Buffer) Release() {
	if b != nil {
		b.refs.Add(-1)
	}
}

// RefCount reports the current reference count. Intended for tests and
// diagnostics, not for control flow.
func (b *Buffer) RefCount() int32 {
	if b == nil {
		return 0
	}
	return b.refs.Load()
}
