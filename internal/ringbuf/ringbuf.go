// Package ringbuf implements the mapped circular memory region used by a
// port: a byte region of length L plus a wrap-overhang that mirrors the
// first `overhang` bytes, so a contiguous read of up to `overhang` bytes
// straddling the wrap point never has to branch.
//
// A true zero-copy ring mmaps the same physical pages twice, back to
// back, so writes to either virtual address are instantly visible at the
// other (no copy at all). That trick has no portable Go equivalent
// outside cgo/raw syscalls on a single OS, so this package keeps the
// external contract (GetOutputBuffer/Peek never need to branch on wrap)
// and instead maintains an explicit mirror copy bounded by `overhang`,
// refreshed incrementally every time a write touches the mirrored window.
// Writes that touch neither the first `overhang` bytes nor the wrap
// boundary remain a single slice write with no extra copy; writes that
// touch either pay the bounded mirror update. Cache-line padding and an atomic cursor guard against false
// sharing between the write cursor and its neighboring fields.
package ringbuf

import "sync/atomic"

// CacheLine is the false-sharing guard width between padded fields.
const CacheLine = 64

type padding [CacheLine]byte

// Buffer is the mapped ring. Construction happens once, at Ready() time;
// after that, GetOutputBuffer/Commit/Peek are safe to call concurrently with cursor
// advances performed elsewhere under the stream mutex.
type Buffer struct {
	_        padding
	length   uint32 // L: the logical (wrap) size, always > 0
	overhang uint32 // max contiguous read/write span guaranteed branch-free
	_        padding
	data     []byte // length+overhang bytes
	_        padding
	writePos atomic.Uint64 // monotonic byte count published so far
}

// New allocates a ring of logical length `length` with a wrap-overhang of
// `overhang` bytes. overhang must be at least as large as the largest
// single GetOutputBuffer request and the largest single contiguous read
// any reader may perform; graph.Ready computes this.
func New(length, overhang uint32) *Buffer {
	if length == 0 {
		length = 1
	}
	return &Buffer{
		length:   length,
		overhang: overhang,
		data:     make([]byte, uint64(length)+uint64(overhang)),
	}
}

// Len returns the logical (wrap) length of the buffer.
func (b *Buffer) Len() uint32 { return b.length }

// Overhang returns the configured wrap-overhang.
func (b *Buffer) Overhang() uint32 { return b.overhang }

// WritePos returns the current published write cursor (monotonic byte
// count, not wrapped).
func (b *Buffer) WritePos() uint64 { return b.writePos.Load() }

// GetOutputBuffer returns a writable, contiguous slice of up to maxWrite
// bytes at the current write cursor. The caller (a filter's input()) may
// write fewer bytes than maxWrite; Commit publishes however many were
// actually written. Zero-copy in the common (non-wrap) case.
func (b *Buffer) GetOutputBuffer(maxWrite uint32) []byte {
	idx := b.writePos.Load() % uint64(b.length)
	return b.data[idx : idx+uint64(maxWrite)]
}

// Commit publishes n bytes written via the slice returned by the most
// recent GetOutputBuffer call, advances the write cursor, and refreshes
// the mirror window for any bytes that touched the wrap boundary.
func (b *Buffer) Commit(n uint32) {
	if n == 0 {
		return
	}
	idx := b.writePos.Load() % uint64(b.length)
	b.mirror(idx, uint64(n))
	b.writePos.Add(uint64(n))
}

// mirror refreshes the wrap-overhang copy for a write that touched
// [idx, idx+n) of the logical buffer. Two independent windows can need
// refreshing: bytes landing in the low mirrored region [0, overhang) are
// copied forward to [length, length+overhang); bytes landing past the
// logical boundary (because the write itself crossed length, e.g. a
// write starting near the end) are copied backward into [0, overhang).
func (b *Buffer) mirror(idx, n uint64) {
	L := uint64(b.length)
	OH := uint64(b.overhang)
	if OH == 0 {
		return
	}

	// Forward mirror: intersection of [idx, idx+n) with [0, OH).
	if lo, hi := idx, idx+n; lo < OH {
		end := hi
		if end > OH {
			end = OH
		}
		if end > lo {
			copy(b.data[L+lo:L+end], b.data[lo:end])
		}
	}

	// Backward mirror: intersection of [idx, idx+n) with [L, L+OH) — only
	// possible when idx+n extends past L, i.e. the write itself wrapped.
	if idx+n > L {
		lo := idx
		if lo < L {
			lo = L
		}
		hi := idx + n
		if hi > L+OH {
			hi = L + OH
		}
		if hi > lo {
			copy(b.data[lo-L:hi-L], b.data[lo:hi])
		}
	}
}

// Peek returns a contiguous, read-only view of `length` bytes starting at
// the wrapped position of the monotonic offset `pos`. length must be <=
// overhang (the caller, a Reader, never requests more than its own
// read-promise, which graph.Ready bounds by the buffer's overhang).
func (b *Buffer) Peek(pos uint64, length uint32) []byte {
	idx := pos % uint64(b.length)
	return b.data[idx : idx+uint64(length)]
}
