package importer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"checkin/internal/attendee"
	"checkin/internal/store"
)

// clearGuard matches every real row; PostgREST refuses unfiltered deletes.
const clearGuard = "00000000-0000-0000-0000-000000000000"

// BatchSize returns the insert batch size for kind.
func BatchSize(kind attendee.Kind) int {
	if kind == attendee.Staff {
		return 50
	}
	return 100
}

// Options controls one import run.
type Options struct {
	Clear     bool // delete existing rows first
	BatchSize int  // 0 uses BatchSize(kind)
}

// Result summarizes an import run.
type Result struct {
	Kind     attendee.Kind `json:"kind"`
	Deleted  int64         `json:"deleted"`
	Inserted int           `json:"inserted"`
	Invalid  int           `json:"invalid"`
	Batches  int           `json:"batches"`
	Total    int           `json:"total"` // rows in the table afterwards
}

// Importer bulk loads people into the record store.
type Importer struct {
	store  store.Store
	logger *zap.Logger
}

// New creates an importer writing to st.
func New(st store.Store, logger *zap.Logger) *Importer {
	return &Importer{store: st, logger: logger.With(zap.String("component", "importer"))}
}

// Run inserts people of kind in batches and verifies the resulting row count.
// A failed batch stops the run; earlier batches stay committed.
func (i *Importer) Run(ctx context.Context, kind attendee.Kind, people []attendee.Person, opts Options) (Result, error) {
	res := Result{Kind: kind}
	table := kind.Table()
	size := opts.BatchSize
	if size <= 0 {
		size = BatchSize(kind)
	}

	if opts.Clear {
		n, err := i.store.DeleteWhere(ctx, table, store.Neq(attendee.ColumnID, clearGuard))
		if err != nil {
			return res, fmt.Errorf("clear %s: %w", table, err)
		}
		res.Deleted = n
		i.logger.Info("cleared table", zap.String("table", table), zap.Int64("deleted", n))
	}

	rows := make([]store.Row, 0, len(people))
	for _, p := range people {
		if err := attendee.ValidatePerson(p); err != nil {
			i.logger.Warn("skipping invalid row", zap.String("name", p.Name), zap.Error(err))
			res.Invalid++
			continue
		}
		p.ID, p.CheckedIn, p.CheckedInAt = "", false, nil
		rows = append(rows, attendee.FromDomain(p))
	}

	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		if err := i.store.InsertBatch(ctx, table, rows[start:end]); err != nil {
			return res, fmt.Errorf("insert %s batch %d: %w", table, res.Batches+1, err)
		}
		res.Batches++
		res.Inserted += end - start
		i.logger.Info("inserted batch",
			zap.String("table", table),
			zap.Int("batch", res.Batches),
			zap.Int("inserted", res.Inserted),
			zap.Int("of", len(rows)),
		)
	}

	total, err := i.store.Count(ctx, table)
	if err != nil {
		return res, fmt.Errorf("verify %s: %w", table, err)
	}
	res.Total = total
	return res, nil
}
