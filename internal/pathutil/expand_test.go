package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_HomeShortcut(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := Expand("~/.coachviz/templates")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".coachviz", "templates"), got)

	bare, err := Expand("~")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(home), bare)
}

func TestExpand_EnvVar(t *testing.T) {
	t.Setenv("COACHVIZ_PATH_TEST", "/tmp/coachviz-path")

	got, err := Expand("$COACHVIZ_PATH_TEST/output")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/tmp/coachviz-path/output"), got)
}

func TestExpand_Empty(t *testing.T) {
	got, err := Expand("   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpand_HomeEnvTilde(t *testing.T) {
	t.Setenv("HOME", "~")

	got, err := Expand("~/.coachviz")
	if err != nil {
		// no passwd entry to fall back on
		assert.Contains(t, err.Error(), "HOME")
		return
	}
	require.NotEmpty(t, got)
	assert.NotEqual(t, byte('~'), got[0])
}

func TestWithin(t *testing.T) {
	root := filepath.Join("/srv", "templates")

	assert.True(t, Within(root, root))
	assert.True(t, Within(root, filepath.Join(root, "tennis", "clean")))
	assert.False(t, Within(root, filepath.Join(root, "..", "secrets")))
	assert.False(t, Within(root, "/srv/templates-other"))
	assert.True(t, Within(root, filepath.Join(root, "..data")))
}
