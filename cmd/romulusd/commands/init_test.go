package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romulus-oracle/romulus/pkg/config"
)

func TestInitCmdWritesConfig(t *testing.T) {
	dir := t.TempDir()

	cmd := NewInitCmd()
	cmd.SetArgs([]string{"--" + config.FlagRootDir, dir, "--" + config.FlagOwner, "0x00000000000000000000000000000000000000ee"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(filepath.Join(dir, config.ConfigName))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, config.ConfigName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "0x00000000000000000000000000000000000000ee")
}

func TestInitCmdRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()

	cmd := NewInitCmd()
	cmd.SetArgs([]string{"--" + config.FlagRootDir, dir})
	require.NoError(t, cmd.Execute())

	again := NewInitCmd()
	again.SetArgs([]string{"--" + config.FlagRootDir, dir})
	require.Error(t, again.Execute())
}
