package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgsFilterDerivesNameFromPath(t *testing.T) {
	inv, err := ParseArgs([]string{"-f", "/opt/quickstream/countsource.so"})
	require.NoError(t, err)
	require.Len(t, inv.Filters, 1)
	require.Equal(t, "countsource", inv.Filters[0].Name)
}

func TestParseArgsFilterWithModuleArgsAndExplicitName(t *testing.T) {
	inv, err := ParseArgs([]string{
		"--filter", "/opt/countsource.so",
		"{", "--name", "src1", "--rate", "1000", "}",
	})
	require.NoError(t, err)
	require.Len(t, inv.Filters, 1)
	f := inv.Filters[0]
	require.Equal(t, "src1", f.Name)
	require.Equal(t, []string{"--name", "src1", "--rate", "1000"}, f.Args)
}

func TestParseArgsLongOptionAcceptsInlineEquals(t *testing.T) {
	inv, err := ParseArgs([]string{"--threads=12"})
	require.NoError(t, err)
	require.Equal(t, 12, inv.Threads)
}

func TestParseArgsConnectParsesPairs(t *testing.T) {
	inv, err := ParseArgs([]string{"-c", "0 1 1 2"})
	require.NoError(t, err)
	require.Len(t, inv.Connects, 1)
	require.Equal(t, [][2]int{{0, 1}, {1, 2}}, inv.Connects[0].Pairs)
}

func TestParseArgsPlugParsesExplicitPorts(t *testing.T) {
	inv, err := ParseArgs([]string{"-p", "0 1 2 3"})
	require.NoError(t, err)
	require.Len(t, inv.Plugs, 1)
	require.Equal(t, PlugSpec{From: 0, To: 1, FromPort: 2, ToPort: 3}, inv.Plugs[0])
}

func TestParseArgsVerboseAndNoVerboseAdjustLevel(t *testing.T) {
	inv, err := ParseArgs([]string{"-v", "-v", "-n"})
	require.NoError(t, err)
	require.Equal(t, 1, inv.Verbose)
}

func TestParseArgsUnknownOptionFails(t *testing.T) {
	_, err := ParseArgs([]string{"--not-a-flag"})
	require.Error(t, err)
}

func TestParseArgsMissingArgumentFails(t *testing.T) {
	_, err := ParseArgs([]string{"--threads"})
	require.Error(t, err)
}

func TestParseArgsUnterminatedBraceGroupFails(t *testing.T) {
	_, err := ParseArgs([]string{"-f", "x.so", "{", "--name", "foo"})
	require.Error(t, err)
}

func TestParseArgsReadyRunDisplayDotFlags(t *testing.T) {
	inv, err := ParseArgs([]string{"-R", "-r", "-d", "-D", "-g", "-h", "-V"})
	require.NoError(t, err)
	require.True(t, inv.Ready)
	require.True(t, inv.Run)
	require.True(t, inv.Display)
	require.True(t, inv.DisplayWait)
	require.True(t, inv.Dot)
	require.True(t, inv.Help)
	require.True(t, inv.Version)
}
