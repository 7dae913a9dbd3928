package suite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const focusSuite = `
id: focus
name: Focus Suite
entry: coach
agents:
  - name: coach
    instructions: Keep the user on a single task.
    handoffs: [scribe]
  - name: scribe
    instructions: Take notes into the active tab.
`

func TestLoadDirAndResolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "focus.yaml"), []byte(focusSuite), 0o644))

	c := NewCatalog()
	require.NoError(t, c.LoadDir(dir))

	g := c.Graph("focus")
	assert.Equal(t, "focus", g.ID)
	assert.Equal(t, "coach", g.Entry)
	require.Len(t, g.Agents, 2)
	assert.Equal(t, []string{"scribe"}, g.Agents[0].Handoffs)
}

func TestUnknownSuiteFallsBackToLegacyAgent(t *testing.T) {
	c := NewCatalog()

	g := c.Graph("nope")
	assert.Equal(t, "legacy", g.ID)
	require.Len(t, g.Agents, 1)
	assert.Equal(t, g.Entry, g.Agents[0].Name)
}

func TestLoadDirMissingDirectoryIsNotAnError(t *testing.T) {
	c := NewCatalog()
	assert.NoError(t, c.LoadDir(filepath.Join(t.TempDir(), "absent")))
	assert.Empty(t, c.IDs())
}
