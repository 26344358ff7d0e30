package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"checkin/internal/attendee"
	"checkin/internal/audit"
	"checkin/internal/metrics"
	"checkin/internal/roster"
	"checkin/internal/store"
)

// Operation names used in errors, logs and metrics.
const (
	OpLoad     = "load"
	OpCheckIn  = "checkin"
	OpCheckOut = "checkout"
	OpUpdate   = "update"
	OpSearch   = "search"
)

const _defaultTimeout = 5 * time.Second

// Service keeps one roster per kind in sync with the record store. Writes are
// applied to the roster first and rolled back if the store rejects them.
type Service struct {
	store   store.Store
	rosters map[attendee.Kind]*roster.Roster
	audit   *audit.Recorder
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAudit records check-ins and check-outs through r.
func WithAudit(r *audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// WithMetrics reports operations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a service over st with empty rosters.
func NewService(st store.Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:   st,
		rosters: map[attendee.Kind]*roster.Roster{},
		timeout: _defaultTimeout,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "checkin")),
	}
	for _, k := range attendee.Kinds {
		s.rosters[k] = roster.New(k)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) roster(kind attendee.Kind) (*roster.Roster, error) {
	r, ok := s.rosters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return r, nil
}

// ---------- Load ----------

// Load replaces the roster of kind with the store contents. On failure the
// roster is emptied and a *FetchError is returned.
func (s *Service) Load(ctx context.Context, kind attendee.Kind) (int, error) {
	r, err := s.roster(kind)
	if err != nil {
		return 0, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	rows, err := s.store.FetchAll(cctx, kind.Table())
	s.metrics.Since("fetch_all", start)
	if err != nil {
		r.Replace(nil)
		s.publish(kind)
		s.metrics.Observe(string(kind), OpLoad, metrics.ResultError)
		s.logger.Error("roster load failed", zap.String("kind", string(kind)), zap.Error(err))
		return 0, &FetchError{Kind: kind, Err: err}
	}

	kept := r.Replace(s.toPeople(kind, rows))
	s.publish(kind)
	s.metrics.Observe(string(kind), OpLoad, metrics.ResultOK)
	s.logger.Info("roster loaded",
		zap.String("kind", string(kind)),
		zap.Int("rows", len(rows)),
		zap.Int("kept", kept),
	)
	return kept, nil
}

// LoadAll loads every kind and joins the failures.
func (s *Service) LoadAll(ctx context.Context) error {
	var errs []error
	for _, k := range attendee.Kinds {
		if _, err := s.Load(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ---------- Mutations ----------

// CheckIn marks a person checked in now. Repeating it refreshes the timestamp.
func (s *Service) CheckIn(ctx context.Context, kind attendee.Kind, id, operator string) (attendee.Person, error) {
	var patch attendee.Patch
	patch.CheckIn(s.now())

	p, err := s.apply(ctx, kind, id, OpCheckIn, patch)
	if err != nil {
		return attendee.Person{}, err
	}
	s.record(ctx, p, audit.ActionCheckedIn, operator)
	return p, nil
}

// CheckOut marks a person pending and clears the check-in time.
func (s *Service) CheckOut(ctx context.Context, kind attendee.Kind, id, operator string) (attendee.Person, error) {
	var patch attendee.Patch
	patch.CheckOut()

	p, err := s.apply(ctx, kind, id, OpCheckOut, patch)
	if err != nil {
		return attendee.Person{}, err
	}
	s.record(ctx, p, audit.ActionUnchecked, operator)
	return p, nil
}

// Update merges patch into a person and returns the stored record. Blank
// values are not sent; an empty patch returns the current record untouched.
// A check-in carried by patch is stamped with the service clock.
func (s *Service) Update(ctx context.Context, kind attendee.Kind, id string, patch attendee.Patch, operator string) (attendee.Person, error) {
	if err := attendee.Validate(kind, patch); err != nil {
		s.metrics.Observe(string(kind), OpUpdate, metrics.ResultInvalid)
		return attendee.Person{}, err
	}

	if in, ok := patch.CheckedIn(); ok && in {
		patch.CheckIn(s.now())
	}

	before, _ := s.Get(kind, id)
	p, err := s.apply(ctx, kind, id, OpUpdate, patch)
	if err != nil {
		return attendee.Person{}, err
	}
	if in, ok := patch.CheckedIn(); ok && in != before.CheckedIn {
		action := audit.ActionUnchecked
		if in {
			action = audit.ActionCheckedIn
		}
		s.record(ctx, p, action, operator)
	}
	return p, nil
}

func (s *Service) apply(ctx context.Context, kind attendee.Kind, id, op string, patch attendee.Patch) (attendee.Person, error) {
	r, err := s.roster(kind)
	if err != nil {
		return attendee.Person{}, err
	}
	log := s.logger.With(zap.String("kind", string(kind)), zap.String("id", id), zap.String("op", op))

	current, _, ok := r.Get(id)
	if !ok {
		current, err = s.adopt(ctx, r, id)
		if err != nil {
			s.metrics.Observe(string(kind), op, metrics.ResultError)
			log.Warn("write target unavailable", zap.Error(err))
			return attendee.Person{}, &RemoteWriteError{Kind: kind, ID: id, Op: op, Err: err}
		}
	}

	if patch.Empty() {
		s.metrics.Observe(string(kind), op, metrics.ResultOK)
		return current, nil
	}

	optimistic := patch.Apply(current)
	optRev := r.Put(optimistic)
	s.publish(kind)

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	row, err := s.store.Update(cctx, kind.Table(), id, attendee.ToRemote(kind, patch))
	s.metrics.Since(op, start)

	if err != nil {
		rolledBack := r.CompareAndSwap(id, optRev, current)
		s.publish(kind)
		result := metrics.ResultError
		if rolledBack {
			result = metrics.ResultRollback
		}
		s.metrics.Observe(string(kind), op, result)
		log.Error("remote write failed", zap.Bool("rolled_back", rolledBack), zap.Error(err))
		return attendee.Person{}, &RemoteWriteError{Kind: kind, ID: id, Op: op, Err: err}
	}

	stored, err := s.fromRow(kind, row)
	if err != nil {
		// The store accepted the write; keep the optimistic record until the next load.
		log.Warn("stored row unreadable", zap.Error(err))
		stored = optimistic
	}
	if !r.CompareAndSwap(id, optRev, stored) {
		log.Debug("newer local write kept")
	}
	s.publish(kind)
	s.metrics.Observe(string(kind), op, metrics.ResultOK)
	log.Info("remote write ok", zap.Int64("latency_ms", time.Since(start).Milliseconds()))
	return stored, nil
}

// adopt fetches a record missing from the roster, typically imported after
// the last load, and adds it.
func (s *Service) adopt(ctx context.Context, r *roster.Roster, id string) (attendee.Person, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row, err := s.store.FetchByID(cctx, r.Kind().Table(), id)
	if err != nil {
		return attendee.Person{}, err
	}
	p, err := s.fromRow(r.Kind(), row)
	if err != nil {
		return attendee.Person{}, err
	}
	if !p.Valid() {
		return attendee.Person{}, fmt.Errorf("%s %s: %w", r.Kind(), id, store.ErrNotFound)
	}
	r.Put(p)
	return p, nil
}

func (s *Service) record(ctx context.Context, p attendee.Person, action, operator string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, store.LogEntry{
		PersonID:    p.ID,
		PersonType:  string(p.Kind),
		PersonName:  p.Name,
		Action:      action,
		PerformedBy: strings.TrimSpace(operator),
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit record failed",
			zap.String("id", p.ID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// ---------- Reads ----------

// Get returns the roster copy of a person.
func (s *Service) Get(kind attendee.Kind, id string) (attendee.Person, bool) {
	r, err := s.roster(kind)
	if err != nil {
		return attendee.Person{}, false
	}
	p, _, ok := r.Get(id)
	return p, ok
}

// People returns the whole roster of kind in name order.
func (s *Service) People(kind attendee.Kind) []attendee.Person {
	r, err := s.roster(kind)
	if err != nil {
		return nil
	}
	return r.Snapshot()
}

// Buckets partitions the roster of kind filtered by query.
func (s *Service) Buckets(kind attendee.Kind, query string) roster.Buckets {
	return roster.Partition(s.People(kind), query)
}

// Stats counts the roster of kind.
func (s *Service) Stats(kind attendee.Kind) roster.Stats {
	return roster.Count(s.People(kind))
}

// Search asks the store for people whose search columns contain query. It does
// not touch the roster.
func (s *Service) Search(ctx context.Context, kind attendee.Kind, query string) ([]attendee.Person, error) {
	if _, err := s.roster(kind); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return s.People(kind), nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	rows, err := s.store.Search(cctx, kind.Table(), query, attendee.SearchColumns(kind))
	s.metrics.Since(OpSearch, start)
	if err != nil {
		s.metrics.Observe(string(kind), OpSearch, metrics.ResultError)
		return nil, &FetchError{Kind: kind, Err: err}
	}
	s.metrics.Observe(string(kind), OpSearch, metrics.ResultOK)
	return s.toPeople(kind, rows), nil
}

// FetchByState reads pending or checked-in people straight from the store.
func (s *Service) FetchByState(ctx context.Context, kind attendee.Kind, checkedIn bool) ([]attendee.Person, error) {
	if _, err := s.roster(kind); err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	rows, err := s.store.FetchWhere(cctx, kind.Table(), store.Eq(attendee.ColumnCheckedIn, checkedIn))
	s.metrics.Since("fetch_where", start)
	if err != nil {
		return nil, &FetchError{Kind: kind, Err: err}
	}
	return s.toPeople(kind, rows), nil
}

func (s *Service) toPeople(kind attendee.Kind, rows []store.Row) []attendee.Person {
	people := make([]attendee.Person, 0, len(rows))
	for _, row := range rows {
		p, err := s.fromRow(kind, row)
		if err != nil {
			s.logger.Warn("skipping unreadable row", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		if !p.Valid() {
			continue
		}
		people = append(people, p)
	}
	return people
}

// fromRow converts a store row, keeping people whose check-in timestamp had to
// be filled in.
func (s *Service) fromRow(kind attendee.Kind, row store.Row) (attendee.Person, error) {
	p, err := attendee.ToDomain(kind, row)
	if errors.Is(err, attendee.ErrTimestampFilled) {
		s.logger.Warn("check-in timestamp filled", zap.String("kind", string(kind)), zap.Error(err))
		return p, nil
	}
	return p, err
}

func (s *Service) publish(kind attendee.Kind) {
	if s.metrics == nil {
		return
	}
	st := s.Stats(kind)
	s.metrics.SetRoster(string(kind), st.Pending, st.CheckedIn)
}
