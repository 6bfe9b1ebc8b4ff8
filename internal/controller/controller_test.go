package controller

import (
	"testing"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/job"
	"github.com/stretchr/testify/require"
)

type noopPlugin struct{}

func (noopPlugin) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	return 0
}

type fullController struct {
	constructArgs []string
	preStarts     []int
	postStarts    []int
	preStops      []int
	postStops     []int
	destroyed     bool
}

func (c *fullController) Construct(args []string) error {
	c.constructArgs = args
	return nil
}

func (c *fullController) PreStart(filterIdx, numIn, numOut int) error {
	c.preStarts = append(c.preStarts, filterIdx)
	return nil
}

func (c *fullController) PostStart(filterIdx, numIn, numOut int) error {
	c.postStarts = append(c.postStarts, filterIdx)
	return nil
}

func (c *fullController) PreStop(filterIdx int) error {
	c.preStops = append(c.preStops, filterIdx)
	return nil
}

func (c *fullController) PostStop(filterIdx int) error {
	c.postStops = append(c.postStops, filterIdx)
	return nil
}

func (c *fullController) Destroy() { c.destroyed = true }

func (c *fullController) Help() string { return "fullController help" }

func TestRecordDispatchesOnlyImplementedHooks(t *testing.T) {
	bare := NewRecord("bare", struct{}{})
	require.NoError(t, bare.RunConstruct(nil))
	require.NoError(t, bare.RunPreStart(0, 1, 1))
	require.NoError(t, bare.RunPostStart(0, 1, 1))
	require.NoError(t, bare.RunPreStop(0))
	require.NoError(t, bare.RunPostStop(0))
	require.NotPanics(t, bare.RunDestroy)
	require.Equal(t, "", bare.HelpText())
}

func TestRecordDispatchesAllHooksOnFullController(t *testing.T) {
	c := &fullController{}
	r := NewRecord("full", c)

	require.NoError(t, r.RunConstruct([]string{"a", "b"}))
	require.Equal(t, []string{"a", "b"}, c.constructArgs)

	require.NoError(t, r.RunPreStart(2, 1, 1))
	require.NoError(t, r.RunPostStart(2, 1, 1))
	require.Equal(t, []int{2}, c.preStarts)
	require.Equal(t, []int{2}, c.postStarts)

	require.NoError(t, r.RunPreStop(2))
	require.NoError(t, r.RunPostStop(2))
	require.Equal(t, []int{2}, c.preStops)
	require.Equal(t, []int{2}, c.postStops)

	r.RunDestroy()
	require.True(t, c.destroyed)
	require.Equal(t, "fullController help", r.HelpText())
}

func TestAddPostFilterInputObservesAdvanceAndUnregistersOnNonZero(t *testing.T) {
	f := filter.NewRecord("f", noopPlugin{}, 1)
	f.GrowInputs(1)

	r := NewRecord("watcher", struct{}{})
	var seenAdvance []uint32
	calls := 0
	r.AddPostFilterInput(f, func(inLen, outLen []uint32, flushing []bool) int {
		calls++
		seenAdvance = append(seenAdvance, inLen...)
		if calls == 2 {
			return 1 // unregister after the second call
		}
		return 0
	})

	j := job.New(1, 0)
	j.InAdvance[0] = 5
	ctx := filter.NewCtx(f, j, filter.PhaseInput)
	f.RunPostInput(ctx, 0)
	require.Equal(t, 1, calls)

	j.InAdvance[0] = 7
	f.RunPostInput(ctx, 0)
	require.Equal(t, 2, calls)
	require.Equal(t, []uint32{5, 7}, seenAdvance)

	// Third call should be a no-op: the hook unregistered itself.
	j.InAdvance[0] = 9
	f.RunPostInput(ctx, 0)
	require.Equal(t, 2, calls)
}

func TestAddPostFilterInputReplacesExistingRegistrationUnderSameName(t *testing.T) {
	f := filter.NewRecord("f", noopPlugin{}, 1)
	f.GrowInputs(1)

	r := NewRecord("watcher", struct{}{})
	firstCalled, secondCalled := false, false
	r.AddPostFilterInput(f, func(inLen, outLen []uint32, flushing []bool) int {
		firstCalled = true
		return 0
	})
	r.AddPostFilterInput(f, func(inLen, outLen []uint32, flushing []bool) int {
		secondCalled = true
		return 0
	})

	j := job.New(1, 0)
	ctx := filter.NewCtx(f, j, filter.PhaseInput)
	f.RunPostInput(ctx, 0)

	require.False(t, firstCalled)
	require.True(t, secondCalled)
}
