package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/protagolabs/agentcore/pkg/database"
)

// DynamicModuleKeys are the lowercase module keys that may own on-demand
// memory tables. Used by the agent cascade delete to enumerate candidates.
var DynamicModuleKeys = []string{"chat", "job", "awareness", "social_network", "basic_info", "rag", "skill"}

// EventMemoryTable names the per-module event memory table, keyed by
// narrative_id.
func EventMemoryTable(moduleKey string) string {
	return "json_format_event_memory_" + moduleKey
}

// InstanceMemoryTable names the per-module instance memory table, keyed by
// instance_id.
func InstanceMemoryTable(moduleKey string) string {
	return "instance_json_format_memory_" + moduleKey
}

// MemoryRepo stores module memory: the shared report/JSON memory tables plus
// per-module dynamic tables created on first write.
type MemoryRepo struct {
	store *database.Store
}

// NewMemoryRepo creates a MemoryRepo.
func NewMemoryRepo(store *database.Store) *MemoryRepo {
	return &MemoryRepo{store: store}
}

// GetReport returns the instance's free-text report memory.
func (r *MemoryRepo) GetReport(ctx context.Context, instanceID string) (string, error) {
	row, err := r.store.GetOne(ctx, "instance_module_report_memory",
		map[string]any{"instance_id": instanceID})
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	return rowString(row, "memory"), nil
}

// SaveReport upserts the instance's report memory.
func (r *MemoryRepo) SaveReport(ctx context.Context, instanceID, memory string) error {
	_, err := r.store.Upsert(ctx, "instance_module_report_memory", map[string]any{
		"instance_id": instanceID,
		"memory":      memory,
	}, "instance_id")
	return err
}

// GetJSON returns the instance's structured memory entries.
func (r *MemoryRepo) GetJSON(ctx context.Context, instanceID string) ([]map[string]any, error) {
	row, err := r.store.GetOne(ctx, "instance_json_format_memory",
		map[string]any{"instance_id": instanceID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	var out []map[string]any
	decodeJSON(row, "memory", &out)
	return out, nil
}

// SaveJSON upserts the instance's structured memory. Writing the same
// document twice is a no-op at the row level, which keeps hook retries
// idempotent.
func (r *MemoryRepo) SaveJSON(ctx context.Context, instanceID string, entries []map[string]any) error {
	if entries == nil {
		entries = []map[string]any{}
	}
	_, err := r.store.Upsert(ctx, "instance_json_format_memory", map[string]any{
		"instance_id": instanceID,
		"memory":      mustJSON(entries),
	}, "instance_id")
	return err
}

// ensureDynamicTable creates a dynamic memory table when absent. The key
// column differs between event and instance tables.
func (r *MemoryRepo) ensureDynamicTable(ctx context.Context, table, keyColumn string) error {
	if err := database.ValidIdent(table); err != nil {
		return err
	}
	_, err := r.store.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
		    %s         VARCHAR(64) PRIMARY KEY,
		    memory     TEXT NOT NULL DEFAULT '[]',
		    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table, keyColumn))
	return err
}

// GetEventMemory returns the narrative-scoped memory of a module, empty when
// the table or row does not exist.
func (r *MemoryRepo) GetEventMemory(ctx context.Context, moduleKey, narrativeID string) ([]map[string]any, error) {
	return r.getDynamic(ctx, EventMemoryTable(moduleKey), "narrative_id", narrativeID)
}

// SaveEventMemory upserts the narrative-scoped memory of a module, creating
// the table on first write.
func (r *MemoryRepo) SaveEventMemory(ctx context.Context, moduleKey, narrativeID string, entries []map[string]any) error {
	return r.saveDynamic(ctx, EventMemoryTable(moduleKey), "narrative_id", narrativeID, entries)
}

// GetInstanceMemory returns the instance-scoped memory of a module, empty
// when the table or row does not exist.
func (r *MemoryRepo) GetInstanceMemory(ctx context.Context, moduleKey, instanceID string) ([]map[string]any, error) {
	return r.getDynamic(ctx, InstanceMemoryTable(moduleKey), "instance_id", instanceID)
}

// SaveInstanceMemory upserts the instance-scoped memory of a module,
// creating the table on first write.
func (r *MemoryRepo) SaveInstanceMemory(ctx context.Context, moduleKey, instanceID string, entries []map[string]any) error {
	return r.saveDynamic(ctx, InstanceMemoryTable(moduleKey), "instance_id", instanceID, entries)
}

func (r *MemoryRepo) getDynamic(ctx context.Context, table, keyColumn, key string) ([]map[string]any, error) {
	if err := database.ValidIdent(table); err != nil {
		return nil, err
	}
	rows, err := r.store.Query(ctx,
		fmt.Sprintf("SELECT memory FROM %s WHERE %s = $1", table, keyColumn), key)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var out []map[string]any
	decodeJSON(rows[0], "memory", &out)
	return out, nil
}

func (r *MemoryRepo) saveDynamic(ctx context.Context, table, keyColumn, key string, entries []map[string]any) error {
	if err := r.ensureDynamicTable(ctx, table, keyColumn); err != nil {
		return err
	}
	if entries == nil {
		entries = []map[string]any{}
	}
	_, err := r.store.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, memory) VALUES ($1, $2)
		ON CONFLICT (%s) DO UPDATE SET memory = EXCLUDED.memory, updated_at = now()`,
		table, keyColumn, keyColumn),
		key, mustJSON(entries))
	return err
}

// isUndefinedTable matches postgres error 42P01. A read against a
// never-created dynamic table means "no memory yet", not a failure.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
