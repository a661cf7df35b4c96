package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// workspacePath resolves the per-(agent, user) workspace directory and the
// target file inside it, rejecting any path that escapes.
func (s *Server) workspacePath(agentID, userID, filename string) (dir, full string, err error) {
	dir = filepath.Join(s.deps.Config.BaseWorkingPath, agentID+"_"+userID)
	if filename == "" {
		return dir, "", nil
	}
	full = filepath.Join(dir, filepath.Clean("/"+filename))
	if !strings.HasPrefix(full, dir+string(os.PathSeparator)) {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "invalid filename")
	}
	return dir, full, nil
}

// listFilesHandler handles GET /api/agents/:agent_id/files?user_id=.
func (s *Server) listFilesHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	dir, _, err := s.workspacePath(c.Param("agent_id"), userID, "")
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return ok(c, []any{})
	}
	if err != nil {
		return mapServiceError(err)
	}

	files := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, map[string]any{
			"name":        entry.Name(),
			"size":        info.Size(),
			"modified_at": info.ModTime(),
		})
	}
	return ok(c, files)
}

// uploadFileHandler handles POST /api/agents/:agent_id/files (multipart).
func (s *Server) uploadFileHandler(c *echo.Context) error {
	userID := c.FormValue("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}

	dir, full, err := s.workspacePath(c.Param("agent_id"), userID, header.Filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mapServiceError(err)
	}

	src, err := header.Open()
	if err != nil {
		return mapServiceError(err)
	}
	defer src.Close()

	dst, err := os.Create(full)
	if err != nil {
		return mapServiceError(err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return mapServiceError(err)
	}

	return ok(c, map[string]any{"name": filepath.Base(full), "size": header.Size})
}

// deleteFileHandler handles DELETE /api/agents/:agent_id/files?user_id=&filename=.
func (s *Server) deleteFileHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	filename := c.QueryParam("filename")
	if userID == "" || filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and filename are required")
	}
	_, full, err := s.workspacePath(c.Param("agent_id"), userID, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		}
		return mapServiceError(err)
	}
	return ok(c, map[string]any{"deleted": true})
}
