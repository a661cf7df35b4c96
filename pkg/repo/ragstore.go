package repo

import (
	"context"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// RAGStoreRepo tracks the per-agent remote document store record.
type RAGStoreRepo struct {
	store *database.Store
}

// NewRAGStoreRepo creates a RAGStoreRepo.
func NewRAGStoreRepo(store *database.Store) *RAGStoreRepo {
	return &RAGStoreRepo{store: store}
}

// Get loads the agent's store record, nil when none exists yet.
func (r *RAGStoreRepo) Get(ctx context.Context, agentID string) (*models.RAGStore, error) {
	row, err := r.store.GetOne(ctx, "instance_rag_store",
		map[string]any{"display_name": models.RAGDisplayName(agentID)})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return ragStoreFromRow(row), nil
}

// Save upserts the agent's store record.
func (r *RAGStoreRepo) Save(ctx context.Context, rs *models.RAGStore) error {
	if rs.DisplayName == "" {
		return NewValidationError("display_name", "required")
	}
	_, err := r.store.Upsert(ctx, "instance_rag_store", map[string]any{
		"display_name":   rs.DisplayName,
		"store_name":     rs.StoreName,
		"keywords":       mustJSON(rs.Keywords),
		"file_count":     rs.FileCount,
		"uploaded_files": mustJSON(orEmptyList(rs.UploadedFiles)),
	}, "display_name")
	return err
}

// RecordUpload appends a file name and bumps the count. Creates the record
// on first upload.
func (r *RAGStoreRepo) RecordUpload(ctx context.Context, agentID, storeName, fileName string) (*models.RAGStore, error) {
	rs, err := r.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = &models.RAGStore{DisplayName: models.RAGDisplayName(agentID)}
	}
	if storeName != "" {
		rs.StoreName = storeName
	}
	rs.UploadedFiles = append(rs.UploadedFiles, fileName)
	rs.FileCount = len(rs.UploadedFiles)
	if err := r.Save(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// SetKeywords replaces the extracted keyword list.
func (r *RAGStoreRepo) SetKeywords(ctx context.Context, agentID string, keywords []models.RAGKeyword) error {
	_, err := r.store.Update(ctx, "instance_rag_store",
		map[string]any{"display_name": models.RAGDisplayName(agentID)},
		map[string]any{"keywords": mustJSON(keywords)})
	return err
}

func ragStoreFromRow(row database.Row) *models.RAGStore {
	rs := &models.RAGStore{
		DisplayName:   rowString(row, "display_name"),
		StoreName:     rowString(row, "store_name"),
		FileCount:     rowInt(row, "file_count"),
		UploadedFiles: rowStringList(row, "uploaded_files"),
		CreatedAt:     rowTime(row, "created_at"),
		UpdatedAt:     rowTime(row, "updated_at"),
	}
	decodeJSON(row, "keywords", &rs.Keywords)
	return rs
}
