package track

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racesim-client/pkg/geometry"
)

func rectangle(t *testing.T) *geometry.Path {
	t.Helper()
	p, err := geometry.BuildPath([]geometry.Coordinate{
		{Lon: 0, Lat: 0}, {Lon: 4, Lat: 0}, {Lon: 4, Lat: 3}, {Lon: 0, Lat: 3},
	})
	require.NoError(t, err)
	return p
}

func TestPrintPath(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPath(&buf, rectangle(t)))
	assert.Equal(t,
		"M 20.00 280.00 L 380.00 280.00 L 380.00 20.00 L 20.00 20.00 Z\ntotal length: 1240.00\n",
		buf.String())
}

func TestPrintPositions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPositions(&buf, rectangle(t), 4))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "0.000    20.00   280.00", lines[0])
	assert.Equal(t, "0.250   330.00   280.00", lines[1])

	assert.Error(t, printPositions(&buf, rectangle(t), 0))
}

func TestTrackCmd(t *testing.T) {
	cmd := NewTrackCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"list"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "bahrain")

	buf.Reset()
	cmd.SetArgs([]string{"path", "--circuit", "bahrain"})
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(buf.String(), "M "))

	cmd.SetArgs([]string{"path", "--circuit", "nowhere"})
	assert.Error(t, cmd.Execute())
}
