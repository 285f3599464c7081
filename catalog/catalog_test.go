package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"Abridged", "Ebola", "Generic", "Lassa"}, c.SpeciesNames())
	assert.True(t, c.Species["Abridged"].Abridged)
	assert.Empty(t, c.Species["Generic"].FilterTargets)
	assert.Equal(t, "file-BXF0vYQ0QyBF509G9J12g927", c.Species["Generic"].Contaminants)

	small := c.Tests(false)
	require.Len(t, small, 1)
	assert.EqualValues(t, 1135543, small["SRR1553554"].ExpectedAlignmentBaseCount)

	all := c.Tests(true)
	assert.Len(t, all, 4)
	assert.Empty(t, all["G1190"].Reads2)
	assert.Equal(t, "Lassa", all["G1190"].Species)

	assert.Equal(t, []string{"file-Bv8qyX00jy17QYqVpkJb7Gfj"}, c.DemuxTests["tar.run.151023_0015"].RunTarballs)
	assert.Equal(t, `^@(\S+).[1|2] .*`, c.Legacy.SRR1553416.ReadIDRegex)
	assert.Equal(t, "applet-BXQxjv00QyB9QF3vP4BpXg95", c.Defaults.Muscle)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("species: [unterminated"))
	assert.Error(t, err)
}
