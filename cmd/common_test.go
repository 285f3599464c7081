package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringFlagPrecedence(t *testing.T) {
	c := &cobra.Command{Use: "x"}
	c.Flags().String("folder", "/default", "")

	assert.Equal(t, "/config", stringFlag(c, "folder", "", "/config"))
	assert.Equal(t, "/default", stringFlag(c, "folder", "", ""))

	require.NoError(t, c.Flags().Set("folder", "/flag"))
	assert.Equal(t, "/flag", stringFlag(c, "folder", "/config"))
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"buildWorkflows", "buildAssemblyWorkflow", "buildResources", "metrics", "validate", "installMosaik"} {
		assert.Contains(t, names, want)
	}
	sub, _, err := rootCmd.Find([]string{"validate", "postmortem"})
	require.NoError(t, err)
	assert.Equal(t, "postmortem", sub.Name())
}
