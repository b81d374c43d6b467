package common

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file is tolerated", func(t *testing.T) {
		loaded, err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env"))
		require.NoError(t, err)
		assert.False(t, loaded)
	})

	t.Run("existing variables win", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "guard.env")
		require.NoError(t, os.WriteFile(path, []byte("CG_TEST_NEW=from-file\nCG_TEST_SET=from-file\n"), 0600))
		t.Setenv("CG_TEST_SET", "from-env")
		t.Setenv("CG_TEST_NEW", "")
		os.Unsetenv("CG_TEST_NEW")

		loaded, err := LoadEnvFile(path)
		require.NoError(t, err)
		assert.True(t, loaded)
		assert.Equal(t, "from-file", os.Getenv("CG_TEST_NEW"))
		assert.Equal(t, "from-env", os.Getenv("CG_TEST_SET"))
	})
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintVersion(&buf, "guard")
	assert.Contains(t, buf.String(), "guard v"+Version)
	assert.True(t, IsDevBuild())
}
