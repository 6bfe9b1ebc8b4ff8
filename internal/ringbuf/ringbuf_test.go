package ringbuf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapAroundIsContiguous(t *testing.T) {
	b := New(16, 8)

	// Fill the first 12 bytes of the 16-byte logical buffer.
	buf := b.GetOutputBuffer(12)
	copy(buf, []byte("0123456789AB"))
	b.Commit(12)

	// Next write wraps: starts at offset 12, writes 8 bytes, crossing 16.
	buf2 := b.GetOutputBuffer(8)
	copy(buf2, []byte("CDEFGHIJ"[:8]))
	b.Commit(8)

	// A contiguous read starting at offset 10, length 8, straddles the
	// wrap point (10..15 then 0..1 logically) and must read cleanly.
	got := b.Peek(10, 8)
	want := []byte("ABCDEFGH")
	require.True(t, bytes.Equal(got, want), "got %q want %q", got, want)
}

func TestEarlyWriteMirroredForward(t *testing.T) {
	b := New(16, 8)

	buf := b.GetOutputBuffer(4)
	copy(buf, []byte("WXYZ"))
	b.Commit(4)

	// A read starting near the end of the logical buffer that extends
	// into the mirrored early bytes must see the fresh write.
	got := b.Peek(14, 6)
	require.Equal(t, []byte("..WXYZ"[2:]), got[2:])
	require.Equal(t, byte('W'), got[2])
	require.Equal(t, byte('Z'), got[5])
}

func TestNonWrappingWriteIsZeroCopy(t *testing.T) {
	b := New(32, 8)
	buf := b.GetOutputBuffer(10)
	require.Len(t, buf, 10)
	copy(buf, []byte("0123456789"))
	b.Commit(10)
	require.Equal(t, []byte("0123456789"), b.Peek(0, 10))
}
