package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsNegativeThreads(t *testing.T) {
	inv := NewInvocation()
	inv.Threads = -1
	require.Error(t, inv.Validate(0))
}

func TestValidateRejectsOutOfRangePlugIndex(t *testing.T) {
	inv := NewInvocation()
	inv.Plugs = []PlugSpec{{From: 0, To: 5, FromPort: 0, ToPort: 0}}
	require.Error(t, inv.Validate(2))
}

func TestValidateRejectsOutOfRangeConnectIndex(t *testing.T) {
	inv := NewInvocation()
	inv.Connects = []ConnectSpec{{Pairs: [][2]int{{0, 9}}}}
	require.Error(t, inv.Validate(2))
}

func TestValidateImpliesDisplayFromDisplayWait(t *testing.T) {
	inv := NewInvocation()
	inv.DisplayWait = true
	require.NoError(t, inv.Validate(0))
	require.True(t, inv.Display)
}

func TestValidateAcceptsWellFormedInvocation(t *testing.T) {
	inv := NewInvocation()
	inv.Plugs = []PlugSpec{{From: 0, To: 1, FromPort: 0, ToPort: 0}}
	require.NoError(t, inv.Validate(2))
}
