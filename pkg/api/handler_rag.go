package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/protagolabs/agentcore/pkg/llm"
	"github.com/protagolabs/agentcore/pkg/models"
)

// listRAGFilesHandler handles GET /api/agents/:agent_id/rag-files.
func (s *Server) listRAGFilesHandler(c *echo.Context) error {
	store, err := s.deps.RAGStores.Get(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return mapServiceError(err)
	}
	if store == nil {
		return ok(c, map[string]any{"file_count": 0, "uploaded_files": []string{}})
	}
	return ok(c, store)
}

// uploadRAGFileHandler handles POST /api/agents/:agent_id/rag-files. The
// upload is acknowledged immediately; indexing and keyword refresh run in
// the background.
func (s *Server) uploadRAGFileHandler(c *echo.Context) error {
	agentID := c.Param("agent_id")
	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}

	// Stage the payload locally before acknowledging.
	stagingDir := filepath.Join(s.deps.Config.BaseWorkingPath, agentID+"_rag")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return mapServiceError(err)
	}
	staged := filepath.Join(stagingDir, filepath.Base(header.Filename))
	src, err := header.Open()
	if err != nil {
		return mapServiceError(err)
	}
	defer src.Close()
	dst, err := os.Create(staged)
	if err != nil {
		return mapServiceError(err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return mapServiceError(err)
	}
	dst.Close()

	go s.indexRAGFile(agentID, header.Filename, staged)

	return ok(c, map[string]any{
		"file_name": header.Filename,
		"status":    "pending",
	})
}

// indexRAGFile records the upload and refreshes the store's keyword digest.
func (s *Server) indexRAGFile(agentID, fileName, stagedPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := s.deps.RAGStores.RecordUpload(ctx, agentID, models.RAGDisplayName(agentID), fileName)
	if err != nil {
		s.logger.Error("Recording RAG upload failed", "agent_id", agentID, "file", fileName, "error", err)
		return
	}
	s.refreshRAGKeywords(ctx, agentID, store, stagedPath)
	s.logger.Info("RAG file indexed", "agent_id", agentID, "file", fileName, "file_count", store.FileCount)
}

// refreshRAGKeywords asks the model for a keyword digest of the new
// document and merges it into the store. Best effort.
func (s *Server) refreshRAGKeywords(ctx context.Context, agentID string, store *models.RAGStore, stagedPath string) {
	content, err := os.ReadFile(stagedPath)
	if err != nil {
		s.logger.Warn("Reading staged RAG file failed", "path", stagedPath, "error", err)
		return
	}
	sample := string(content)
	if len(sample) > 8000 {
		sample = sample[:8000]
	}

	resp, err := s.deps.LLM.Complete(ctx, llm.Request{
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: "List up to 10 topical keywords for this document, one per line, no numbering:\n\n" +
				sample,
		}},
	})
	if err != nil {
		s.logger.Warn("Keyword extraction failed", "agent_id", agentID, "error", err)
		return
	}

	merged := store.Keywords
	existing := map[string]bool{}
	for _, kw := range merged {
		existing[kw.Keyword] = true
	}
	for _, line := range strings.Split(resp.Content, "\n") {
		kw := strings.TrimSpace(strings.TrimPrefix(line, "-"))
		if kw == "" || existing[kw] || len(merged) >= 20 {
			continue
		}
		existing[kw] = true
		merged = append(merged, models.RAGKeyword{Keyword: kw, Score: 1})
	}
	if err := s.deps.RAGStores.SetKeywords(ctx, agentID, merged); err != nil {
		s.logger.Warn("Saving RAG keywords failed", "agent_id", agentID, "error", err)
	}
}

// deleteRAGFileHandler handles DELETE /api/agents/:agent_id/rag-files?file_name=.
func (s *Server) deleteRAGFileHandler(c *echo.Context) error {
	fileName := c.QueryParam("file_name")
	if fileName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file_name is required")
	}
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	store, err := s.deps.RAGStores.Get(ctx, agentID)
	if err != nil {
		return mapServiceError(err)
	}
	if store == nil {
		return echo.NewHTTPError(http.StatusNotFound, "rag store not found")
	}

	kept := make([]string, 0, len(store.UploadedFiles))
	found := false
	for _, f := range store.UploadedFiles {
		if f == fileName {
			found = true
			continue
		}
		kept = append(kept, f)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "file not found in store")
	}
	store.UploadedFiles = kept
	store.FileCount = len(kept)
	if err := s.deps.RAGStores.Save(ctx, store); err != nil {
		return mapServiceError(err)
	}

	staged := filepath.Join(s.deps.Config.BaseWorkingPath, agentID+"_rag", filepath.Base(fileName))
	if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Removing staged RAG file failed", "path", staged, "error", err)
	}
	return ok(c, map[string]any{"deleted": true, "file_count": store.FileCount})
}
