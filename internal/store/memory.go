package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var _ Store = (*Memory)(nil)

// Memory is a map-backed store for dev and tests.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string]Row
	logs   []LogEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: map[string]map[string]Row{
		TableStudents: {},
		TableStaff:    {},
	}}
}

func (m *Memory) FetchAll(ctx context.Context, table string) ([]Row, error) {
	return m.FetchWhere(ctx, table)
}

func (m *Memory) FetchByID(_ context.Context, table, id string) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.tables[table][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return row.Clone(), nil
}

func (m *Memory) FetchWhere(_ context.Context, table string, filters ...Filter) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Row, 0, len(m.tables[table]))
	for _, row := range m.tables[table] {
		if matchAll(row, filters) {
			out = append(out, row.Clone())
		}
	}
	sortByName(out)
	return out, nil
}

func (m *Memory) Update(_ context.Context, table, id string, patch Row) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.tables[table][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	next := row.Clone()
	for k, v := range patch {
		if k == "id" {
			continue
		}
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	m.tables[table][id] = next
	return next.Clone(), nil
}

func (m *Memory) InsertBatch(_ context.Context, table string, rows []Row) error {
	if err := checkTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[string]Row, len(rows))
	for _, r := range rows {
		row := r.Clone()
		id, _ := row["id"].(string)
		if id == "" {
			id = uuid.NewString()
			row["id"] = id
		}
		if _, exists := m.tables[table][id]; exists {
			return fmt.Errorf("%s %s: %w", table, id, ErrConflict)
		}
		if _, dup := staged[id]; dup {
			return fmt.Errorf("%s %s: %w", table, id, ErrConflict)
		}
		if _, ok := row["checked_in"]; !ok {
			row["checked_in"] = false
		}
		staged[id] = row
	}
	for id, row := range staged {
		m.tables[table][id] = row
	}
	return nil
}

func (m *Memory) DeleteWhere(_ context.Context, table string, filters ...Filter) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, row := range m.tables[table] {
		if matchAll(row, filters) {
			delete(m.tables[table], id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Search(_ context.Context, table, query string, columns []string) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Row
	for _, row := range m.tables[table] {
		for _, c := range columns {
			s, _ := row[c].(string)
			if strings.Contains(strings.ToLower(s), q) {
				out = append(out, row.Clone())
				break
			}
		}
	}
	sortByName(out)
	return out, nil
}

func (m *Memory) Count(_ context.Context, table string) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if table == TableCheckinLog {
		return len(m.logs), nil
	}
	return len(m.tables[table]), nil
}

func (m *Memory) AppendLog(_ context.Context, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

// Logs returns a copy of the audit entries written so far.
func (m *Memory) Logs() []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]LogEntry(nil), m.logs...)
}

func (m *Memory) Close() error { return nil }

func matchAll(row Row, filters []Filter) bool {
	for _, f := range filters {
		eq := fmt.Sprint(row[f.Column]) == fmt.Sprint(f.Value)
		if (f.Op == OpEq) != eq {
			return false
		}
	}
	return true
}

func sortByName(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i]["name"].(string)
		b, _ := rows[j]["name"].(string)
		if a != b {
			return a < b
		}
		x, _ := rows[i]["id"].(string)
		y, _ := rows[j]["id"].(string)
		return x < y
	})
}
