package job

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolAcquireReleaseRecycles(t *testing.T) {
	p := NewPool(2, 1, 1)
	j1 := p.Acquire()
	j1.InLen[0] = 42
	p.MarkWorking(j1)
	require.Equal(t, 1, p.WorkingCount())

	p.Release(j1)
	require.Equal(t, 0, p.WorkingCount())
	require.Equal(t, uint32(0), j1.InLen[0], "Release must reset before returning to the pool")

	j2 := p.Acquire()
	require.Same(t, j1, j2, "the freed job should be reused before allocating a new one")
}

func TestPoolGrowsWhenExhausted(t *testing.T) {
	p := NewPool(1, 1, 1)
	first := p.Acquire()
	p.MarkWorking(first)

	second := p.Acquire()
	require.NotSame(t, first, second)
	require.NotNil(t, second)
}

func TestJobResetClearsAllPorts(t *testing.T) {
	j := New(2, 2)
	j.In[0] = []byte("x")
	j.InLen[0] = 1
	j.InFlushing[1] = true
	j.InAdvance[0] = 1
	j.OutWriteLen[1] = 7

	j.Reset()

	require.Nil(t, j.In[0])
	require.Equal(t, uint32(0), j.InLen[0])
	require.False(t, j.InFlushing[1])
	require.Equal(t, uint32(0), j.InAdvance[0])
	require.Equal(t, uint32(0), j.OutWriteLen[1])
}
