package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Table names in the remote store.
const (
	TableStudents   = "students"
	TableStaff      = "staff"
	TableCheckinLog = "checkin_log"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnknownTable = errors.New("unknown table")
	ErrBadColumn    = errors.New("invalid column name")
)

// Row is a record in wire shape: snake_case columns to JSON-ish values.
// A present key with a nil value is written as NULL.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
)

// Filter is a single column comparison; multiple filters are ANDed.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq matches rows where column equals value.
func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

// Neq matches rows where column differs from value.
func Neq(column string, value any) Filter { return Filter{Column: column, Op: OpNeq, Value: value} }

// LogEntry is one append-only row of the check-in audit trail.
type LogEntry struct {
	PersonID    string    `json:"person_id"`
	PersonType  string    `json:"person_type"`
	PersonName  string    `json:"person_name"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the table-oriented record store the service reads and writes.
// Implementations must be safe for concurrent use.
type Store interface {
	// FetchAll returns every row of table ordered by name.
	FetchAll(ctx context.Context, table string) ([]Row, error)
	FetchByID(ctx context.Context, table, id string) (Row, error)
	// FetchWhere returns rows matching all filters ordered by name.
	FetchWhere(ctx context.Context, table string, filters ...Filter) ([]Row, error)
	// Update applies patch to the row with id and returns the stored row.
	Update(ctx context.Context, table, id string, patch Row) (Row, error)
	InsertBatch(ctx context.Context, table string, rows []Row) error
	DeleteWhere(ctx context.Context, table string, filters ...Filter) (int64, error)
	// Search returns rows where any of columns contains query, case-insensitively.
	Search(ctx context.Context, table, query string, columns []string) ([]Row, error)
	Count(ctx context.Context, table string) (int, error)
	AppendLog(ctx context.Context, entry LogEntry) error
	Close() error
}

var columnRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkTable(table string) error {
	switch table {
	case TableStudents, TableStaff, TableCheckinLog:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

func checkColumns(columns ...string) error {
	for _, c := range columns {
		if !columnRe.MatchString(c) {
			return fmt.Errorf("%w: %q", ErrBadColumn, c)
		}
	}
	return nil
}

func filterColumns(filters []Filter) []string {
	cols := make([]string, 0, len(filters))
	for _, f := range filters {
		cols = append(cols, f.Column)
	}
	return cols
}

func rowColumns(r Row) []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	return cols
}
