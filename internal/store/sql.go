package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var _ Store = (*SQL)(nil)

// SQL dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// SQL is a direct database backend for Postgres or SQLite.
type SQL struct {
	db      *sqlx.DB
	builder squirrel.StatementBuilderType
	dialect string
	logger  *zap.Logger
}

// NewSQL wraps an existing connection.
func NewSQL(db *sqlx.DB, dialect string, logger *zap.Logger) *SQL {
	var format squirrel.PlaceholderFormat = squirrel.Question
	if dialect == DialectPostgres {
		format = squirrel.Dollar
	}
	return &SQL{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(format),
		dialect: dialect,
		logger:  logger.With(zap.String("component", "sql"), zap.String("dialect", dialect)),
	}
}

func (s *SQL) FetchAll(ctx context.Context, table string) ([]Row, error) {
	return s.FetchWhere(ctx, table)
}

func (s *SQL) FetchByID(ctx context.Context, table, id string) (Row, error) {
	rows, err := s.FetchWhere(ctx, table, Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return rows[0], nil
}

func (s *SQL) FetchWhere(ctx context.Context, table string, filters ...Filter) ([]Row, error) {
	if err := s.check(table, filterColumns(filters)...); err != nil {
		return nil, err
	}
	q := s.builder.Select("*").From(table)
	for _, f := range filters {
		q = q.Where(sqlFilter(f))
	}
	return s.selectRows(ctx, q.OrderBy("name ASC", "id ASC"))
}

func (s *SQL) Update(ctx context.Context, table, id string, patch Row) (Row, error) {
	if err := s.check(table, rowColumns(patch)...); err != nil {
		return nil, err
	}
	data := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		if k == "id" {
			continue
		}
		data[k] = sqlValue(k, v)
	}
	data["updated_at"] = time.Now().UTC()

	query, args, err := s.builder.
		Update(table).
		SetMap(data).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("build query", zap.String("sql", query), zap.Int("args", len(args)))

	row := Row{}
	if err := s.db.QueryRowxContext(ctx, query, args...).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
		}
		return nil, s.classify("update", table, err)
	}
	return normalizeRow(row), nil
}

func (s *SQL) InsertBatch(ctx context.Context, table string, rows []Row) error {
	if err := s.check(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	colSet := map[string]struct{}{"id": {}}
	for _, r := range rows {
		for k := range r {
			colSet[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(colSet))
	for k := range colSet {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	if err := checkColumns(cols...); err != nil {
		return err
	}

	q := s.builder.Insert(table).Columns(cols...)
	for _, r := range rows {
		vals := make([]any, 0, len(cols))
		for _, c := range cols {
			v, ok := r[c]
			switch {
			case c == "id" && (!ok || v == nil || v == ""):
				v = uuid.NewString()
			case c == "checked_in" && v == nil:
				v = false
			}
			vals = append(vals, sqlValue(c, v))
		}
		q = q.Values(vals...)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	s.logger.Debug("build query", zap.String("sql", query), zap.Int("rows", len(rows)))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.classify("insert", table, err)
	}
	return nil
}

func (s *SQL) DeleteWhere(ctx context.Context, table string, filters ...Filter) (int64, error) {
	if err := s.check(table, filterColumns(filters)...); err != nil {
		return 0, err
	}
	q := s.builder.Delete(table)
	for _, f := range filters {
		q = q.Where(sqlFilter(f))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	s.logger.Debug("build query", zap.String("sql", query), zap.Int("args", len(args)))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, s.classify("delete", table, err)
	}
	return res.RowsAffected()
}

func (s *SQL) Search(ctx context.Context, table, query string, columns []string) ([]Row, error) {
	if err := s.check(table, columns...); err != nil {
		return nil, err
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	or := squirrel.Or{}
	for _, c := range columns {
		or = append(or, squirrel.Expr("LOWER("+c+") LIKE ? ESCAPE '\\'", pattern))
	}
	q := s.builder.Select("*").From(table).Where(or).OrderBy("name ASC", "id ASC")
	return s.selectRows(ctx, q)
}

func (s *SQL) Count(ctx context.Context, table string) (int, error) {
	if err := s.check(table); err != nil {
		return 0, err
	}
	query, args, err := s.builder.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, s.classify("count", table, err)
	}
	return n, nil
}

func (s *SQL) AppendLog(ctx context.Context, entry LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query, args, err := s.builder.
		Insert(TableCheckinLog).
		Columns("id", "person_id", "person_type", "person_name", "action", "performed_by", "created_at").
		Values(uuid.NewString(), entry.PersonID, entry.PersonType, entry.PersonName, entry.Action, entry.PerformedBy, entry.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.classify("insert", TableCheckinLog, err)
	}
	return nil
}

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) check(table string, columns ...string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	return checkColumns(columns...)
}

func (s *SQL) selectRows(ctx context.Context, q squirrel.SelectBuilder) ([]Row, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("build query", zap.String("sql", query), zap.Int("args", len(args)))

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, s.classify("select", "", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row := Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("success query execute", zap.Int("rows", len(out)))
	return out, nil
}

func (s *SQL) classify(op, table string, err error) error {
	switch {
	case isUniqueViolation(err):
		err = fmt.Errorf("%w: %v", ErrConflict, err)
	case isInvalidText(err):
		// A malformed key, such as a non-uuid id, cannot match any record.
		err = fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	s.logger.Warn("failed query execute", zap.String("op", op), zap.String("table", table), zap.Error(err))
	return fmt.Errorf("%s %s: %w", op, table, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}

func sqlFilter(f Filter) squirrel.Sqlizer {
	if f.Op == OpNeq {
		return squirrel.NotEq{f.Column: sqlValue(f.Column, f.Value)}
	}
	return squirrel.Eq{f.Column: sqlValue(f.Column, f.Value)}
}

// Columns stored as timestamps. Every other column is text and is passed
// through untouched.
var timeColumns = map[string]bool{
	"checked_in_at": true,
	"created_at":    true,
	"updated_at":    true,
}

// sqlValue converts wire values into driver arguments. Timestamp columns
// arrive as RFC 3339 strings from the mapper and are stored as time values.
func sqlValue(column string, v any) any {
	if !timeColumns[column] {
		return v
	}
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil && strings.ContainsRune(s, 'T') {
			return t.UTC()
		}
	}
	return v
}

// normalizeRow turns driver-specific scan results into wire values.
func normalizeRow(row Row) Row {
	for k, v := range row {
		switch val := v.(type) {
		case []byte:
			row[k] = string(val)
		case time.Time:
			row[k] = val.UTC().Format(time.RFC3339Nano)
		case int64:
			// sqlite stores booleans as integers
			if k == "checked_in" {
				row[k] = val != 0
			}
		}
	}
	return row
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
