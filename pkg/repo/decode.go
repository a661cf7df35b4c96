package repo

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/protagolabs/agentcore/pkg/database"
)

// Row decoding helpers. Stored JSON that fails to parse is treated as an
// empty collection with a warning; a corrupt field never crashes a turn.

func rowString(row database.Row, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func rowBool(row database.Row, key string) bool {
	if v, ok := row[key].(bool); ok {
		return v
	}
	return false
}

func rowInt(row database.Row, key string) int {
	switch v := row[key].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func rowFloat(row database.Row, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func rowTime(row database.Row, key string) time.Time {
	if v, ok := row[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

func rowTimePtr(row database.Row, key string) *time.Time {
	if v, ok := row[key].(time.Time); ok {
		return &v
	}
	return nil
}

func rowStringPtr(row database.Row, key string) *string {
	if v, ok := row[key].(string); ok {
		return &v
	}
	return nil
}

func rowVector(row database.Row, key string) []float32 {
	if v, ok := row[key].(string); ok {
		return database.DecodeVector(v)
	}
	return nil
}

// decodeJSON unmarshals a stored JSON column into dst, leaving dst at its
// zero value on corruption.
func decodeJSON(row database.Row, key string, dst any) {
	raw, ok := row[key].(string)
	if !ok || raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		slog.Warn("Corrupt JSON column, treating as empty", "column", key, "error", err)
	}
}

func rowStringList(row database.Row, key string) []string {
	var out []string
	decodeJSON(row, key, &out)
	return out
}

func rowMap(row database.Row, key string) map[string]any {
	out := map[string]any{}
	decodeJSON(row, key, &out)
	return out
}

// mustJSON marshals for storage. Values under our control never fail to
// marshal; a nil fallback keeps the column at its default.
func mustJSON(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal JSON column", "error", err)
		return nil
	}
	return string(data)
}
