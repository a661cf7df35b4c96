package api

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protagolabs/agentcore/pkg/config"
)

func testFileServer(t *testing.T) *Server {
	t.Helper()
	return &Server{deps: Deps{Config: &config.Config{BaseWorkingPath: t.TempDir()}}}
}

func TestWorkspacePath(t *testing.T) {
	s := testFileServer(t)
	base := s.deps.Config.BaseWorkingPath

	t.Run("plain filename", func(t *testing.T) {
		dir, full, err := s.workspacePath("agent_0a1b2c3d", "user_0a1b2c3d", "notes.txt")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "agent_0a1b2c3d_user_0a1b2c3d"), dir)
		assert.Equal(t, filepath.Join(dir, "notes.txt"), full)
	})

	t.Run("empty filename resolves the directory only", func(t *testing.T) {
		dir, full, err := s.workspacePath("agent_0a1b2c3d", "user_0a1b2c3d", "")
		require.NoError(t, err)
		assert.NotEmpty(t, dir)
		assert.Empty(t, full)
	})

	t.Run("traversal is clamped inside the workspace", func(t *testing.T) {
		// Clean("/../../etc/passwd") collapses to /etc/passwd under the
		// workspace root, never outside it.
		_, full, err := s.workspacePath("agent_0a1b2c3d", "user_0a1b2c3d", "../../etc/passwd")
		require.NoError(t, err)
		dir := filepath.Join(base, "agent_0a1b2c3d_user_0a1b2c3d")
		assert.Equal(t, filepath.Join(dir, "etc", "passwd"), full)
	})

	t.Run("rejects the directory itself", func(t *testing.T) {
		_, _, err := s.workspacePath("agent_0a1b2c3d", "user_0a1b2c3d", ".")
		assert.Error(t, err)
	})

	t.Run("nested path stays inside", func(t *testing.T) {
		dir, full, err := s.workspacePath("agent_0a1b2c3d", "user_0a1b2c3d", "reports/q1.md")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "reports", "q1.md"), full)
	})
}
