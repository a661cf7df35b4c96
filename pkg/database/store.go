package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Row is one result row keyed by column name. JSON/JSONB columns come back
// as string values; callers own decoding.
type Row = map[string]any

// identPattern is the only shape accepted for caller-supplied identifiers
// (table and column names). Everything else is a hard error, never quoted
// through.
var identPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Cond expresses a non-equality comparison in a filter map.
type Cond struct {
	Op    string
	Value any
}

// Comparison filter constructors.
func LT(v any) Cond  { return Cond{Op: "<", Value: v} }
func LTE(v any) Cond { return Cond{Op: "<=", Value: v} }
func GT(v any) Cond  { return Cond{Op: ">", Value: v} }
func GTE(v any) Cond { return Cond{Op: ">=", Value: v} }
func NE(v any) Cond  { return Cond{Op: "<>", Value: v} }

// QueryOpts controls ordering and pagination of Get.
type QueryOpts struct {
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Scored pairs a row with its similarity score, descending order.
type Scored struct {
	Row   Row
	Score float64
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the generic data-access layer. All higher layers go through it;
// entity-specific invariants live in pkg/repo.
type Store struct {
	q  querier
	db *sql.DB // nil inside a transaction scope
}

// NewStore wraps a connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{q: db, db: db}
}

// Ping probes connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Get returns rows matching the filters. A nil filter value matches NULL; a
// []string or []any value renders an IN clause; a Cond renders its operator.
func (s *Store) Get(ctx context.Context, table string, filters map[string]any, opts *QueryOpts) ([]Row, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	where, args, err := buildWhere(filters, 1)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(table)
	sb.WriteString(where)
	if opts != nil {
		if opts.OrderBy != "" {
			if err := validIdent(opts.OrderBy); err != nil {
				return nil, err
			}
			sb.WriteString(" ORDER BY ")
			sb.WriteString(opts.OrderBy)
			if opts.Desc {
				sb.WriteString(" DESC")
			}
		}
		if opts.Limit > 0 {
			sb.WriteString(" LIMIT ")
			sb.WriteString(strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			sb.WriteString(" OFFSET ")
			sb.WriteString(strconv.Itoa(opts.Offset))
		}
	}

	rows, err := s.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()
	return rowsToMaps(rows)
}

// GetOne returns the first matching row, or nil when nothing matches.
func (s *Store) GetOne(ctx context.Context, table string, filters map[string]any) (Row, error) {
	rows, err := s.Get(ctx, table, filters, &QueryOpts{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// GetByIDs loads a set of rows by primary key in a single IN query. Results
// are returned in the requested order, with nil entries for missing ids.
// This is the mandatory primitive for avoiding N+1 scans.
func (s *Store) GetByIDs(ctx context.Context, table, idField string, ids []string) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := validIdent(table); err != nil {
		return nil, err
	}
	if err := validIdent(idField); err != nil {
		return nil, err
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)",
		table, idField, strings.Join(placeholders, ", "))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s by ids: %w", table, err)
	}
	defer rows.Close()

	fetched, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Row, len(fetched))
	for _, row := range fetched {
		if id, ok := row[idField].(string); ok {
			byID[id] = row
		}
	}
	ordered := make([]Row, len(ids))
	for i, id := range ids {
		ordered[i] = byID[id] // nil when missing, preserving position
	}
	return ordered, nil
}

// Insert writes one row. Nil-valued fields are dropped so column defaults
// apply. IDs are allocated by the application before insert.
func (s *Store) Insert(ctx context.Context, table string, data map[string]any) error {
	if err := validIdent(table); err != nil {
		return err
	}
	cols, args, err := splitData(data)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("insert into %s: no non-null fields", table)
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// Update modifies matching rows and returns the affected count. Filters must
// be non-empty; a full-table update is always a bug.
func (s *Store) Update(ctx context.Context, table string, filters, data map[string]any) (int64, error) {
	if err := validIdent(table); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, fmt.Errorf("update %s: filters must not be empty", table)
	}
	cols, args, err := splitData(dataWithNulls(data))
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("update %s: no fields to set", table)
	}

	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = $" + strconv.Itoa(i+1)
	}
	where, whereArgs, err := buildWhere(filters, len(cols)+1)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), where)

	res, err := s.q.ExecContext(ctx, query, append(args, whereArgs...)...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Delete removes matching rows and returns the deleted count. Filters must
// be non-empty.
func (s *Store) Delete(ctx context.Context, table string, filters map[string]any) (int64, error) {
	if err := validIdent(table); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, fmt.Errorf("delete from %s: filters must not be empty", table)
	}
	where, args, err := buildWhere(filters, 1)
	if err != nil {
		return 0, err
	}
	res, err := s.q.ExecContext(ctx, "DELETE FROM "+table+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Upsert inserts or updates on conflict with idField, using the database's
// native atomic upsert. Race-free under concurrent writers to the same id.
func (s *Store) Upsert(ctx context.Context, table string, data map[string]any, idField string) (int64, error) {
	if err := validIdent(table); err != nil {
		return 0, err
	}
	if err := validIdent(idField); err != nil {
		return 0, err
	}
	if _, ok := data[idField]; !ok {
		return 0, fmt.Errorf("upsert into %s: data missing conflict field %s", table, idField)
	}
	cols, args, err := splitData(data)
	if err != nil {
		return 0, err
	}

	placeholders := make([]string, len(cols))
	var updates []string
	for i, col := range cols {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		if col != idField {
			updates = append(updates, col+" = EXCLUDED."+col)
		}
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		idField, strings.Join(updates, ", "))
	if len(updates) == 0 {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), idField)
	}

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert into %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Exec is the escape hatch for caller-built statements. Callers embedding
// identifiers must validate them with ValidIdent first.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	return res.RowsAffected()
}

// Query is the fetching escape hatch.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return rowsToMaps(rows)
}

// Transaction runs fn inside a transaction scope. Rollback happens on error
// or panic; commit only on a nil return.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fmt.Errorf("nested transactions are not supported")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	done = true
	return nil
}

// SemanticSearch scans a pgvector column by cosine similarity, returning
// rows with score >= minSimilarity in descending score order.
func (s *Store) SemanticSearch(ctx context.Context, table, embeddingColumn string, queryVec []float32, filters map[string]any, limit int, minSimilarity float64) ([]Scored, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	if err := validIdent(embeddingColumn); err != nil {
		return nil, err
	}
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("semantic search on %s: empty query vector", table)
	}

	args := []any{EncodeVector(queryVec)}
	where, whereArgs, err := buildWhere(filters, 2)
	if err != nil {
		return nil, err
	}
	args = append(args, whereArgs...)

	cond := embeddingColumn + " IS NOT NULL"
	if where == "" {
		where = " WHERE " + cond
	} else {
		where += " AND " + cond
	}

	query := fmt.Sprintf(
		"SELECT *, 1 - (%s <=> $1::vector) AS _similarity FROM %s%s ORDER BY %s <=> $1::vector ASC",
		embeddingColumn, table, where, embeddingColumn)
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("semantic search on %s: %w", table, err)
	}
	defer rows.Close()

	fetched, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}

	var results []Scored
	for _, row := range fetched {
		score, _ := toFloat64(row["_similarity"])
		if score < minSimilarity {
			continue
		}
		delete(row, "_similarity")
		results = append(results, Scored{Row: row, Score: score})
	}
	return results, nil
}

// EncodeVector renders a pgvector literal.
func EncodeVector(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// DecodeVector parses a pgvector literal back into floats.
func DecodeVector(s string) []float32 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil
		}
		vec = append(vec, float32(f))
	}
	return vec
}

// ValidIdent validates a caller-supplied SQL identifier.
func ValidIdent(name string) error {
	return validIdent(name)
}

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid SQL identifier %q", name)
	}
	return nil
}

// nullValue marks an explicit SET col = NULL in Update data.
type nullValue struct{}

// Null is the explicit NULL for updates; plain nils in update data are
// treated the same way.
var Null = nullValue{}

// buildWhere renders filters deterministically (sorted keys) starting at the
// given placeholder index.
func buildWhere(filters map[string]any, startIdx int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	var args []any
	idx := startIdx
	for _, key := range keys {
		if err := validIdent(key); err != nil {
			return "", nil, err
		}
		switch v := filters[key].(type) {
		case nil:
			clauses = append(clauses, key+" IS NULL")
		case Cond:
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", key, v.Op, idx))
			args = append(args, v.Value)
			idx++
		case []string:
			if len(v) == 0 {
				clauses = append(clauses, "FALSE")
				continue
			}
			ph := make([]string, len(v))
			for i, item := range v {
				ph[i] = "$" + strconv.Itoa(idx)
				args = append(args, item)
				idx++
			}
			clauses = append(clauses, key+" IN ("+strings.Join(ph, ", ")+")")
		case []any:
			if len(v) == 0 {
				clauses = append(clauses, "FALSE")
				continue
			}
			ph := make([]string, len(v))
			for i, item := range v {
				ph[i] = "$" + strconv.Itoa(idx)
				args = append(args, item)
				idx++
			}
			clauses = append(clauses, key+" IN ("+strings.Join(ph, ", ")+")")
		default:
			clauses = append(clauses, fmt.Sprintf("%s = $%d", key, idx))
			args = append(args, v)
			idx++
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// splitData renders insert/upsert data deterministically, dropping nils.
func splitData(data map[string]any) ([]string, []any, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var cols []string
	var args []any
	for _, key := range keys {
		if err := validIdent(key); err != nil {
			return nil, nil, err
		}
		val := data[key]
		if val == nil {
			continue
		}
		if _, isNull := val.(nullValue); isNull {
			cols = append(cols, key)
			args = append(args, nil)
			continue
		}
		cols = append(cols, key)
		args = append(args, val)
	}
	return cols, args, nil
}

// dataWithNulls maps plain nils in update data to explicit NULL markers so
// Update can clear columns, unlike Insert which drops them.
func dataWithNulls(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v == nil {
			out[k] = Null
			continue
		}
		out[k] = v
	}
	return out
}

// rowsToMaps scans all rows into column-keyed maps, converting []byte to
// string so JSON columns are directly decodable.
func rowsToMaps(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			case time.Time:
				row[col] = v.UTC()
			default:
				row[col] = v
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
