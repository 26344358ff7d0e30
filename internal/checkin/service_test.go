package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"checkin/internal/attendee"
	"checkin/internal/audit"
	"checkin/internal/metrics"
	"checkin/internal/store"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

// fakeStore wraps the memory store with failure and latency injection.
type fakeStore struct {
	*store.Memory
	updates      atomic.Int32
	updateErr    error
	fetchErr     error
	logErr       error
	delay        time.Duration
	beforeUpdate func()
}

func (f *fakeStore) FetchAll(ctx context.Context, table string) ([]store.Row, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.Memory.FetchAll(ctx, table)
}

func (f *fakeStore) Update(ctx context.Context, table, id string, patch store.Row) (store.Row, error) {
	f.updates.Add(1)
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.Memory.Update(ctx, table, id, patch)
}

func (f *fakeStore) AppendLog(ctx context.Context, entry store.LogEntry) error {
	if f.logErr != nil {
		return f.logErr
	}
	return f.Memory.AppendLog(ctx, entry)
}

type fixture struct {
	st  *fakeStore
	svc *Service
	m   *metrics.Metrics
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := &fakeStore{Memory: store.NewMemory()}
	ctx := context.Background()
	require.NoError(t, st.InsertBatch(ctx, store.TableStudents, []store.Row{
		{"id": "1", "name": "Ana", "country": "Italy", "checked_in": false},
		{"id": "2", "name": "Bo", "country": "Spain", "checked_in": true, "checked_in_at": "2024-06-01T08:00:00Z"},
		{"id": "3", "name": "  ", "country": "Nowhere"},
	}))
	require.NoError(t, st.InsertBatch(ctx, store.TableStaff, []store.Row{
		{"id": "t1", "name": "Cy", "igreja": "Central", "quarto": "3B"},
	}))

	m := metrics.New(prometheus.NewRegistry())
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithMetrics(m),
		WithAudit(audit.NewDirect(st, zap.NewNop())),
	}, opts...)
	svc := NewService(st, zap.NewNop(), opts...)
	require.NoError(t, svc.LoadAll(ctx))
	return &fixture{st: st, svc: svc, m: m}
}

func names(people []attendee.Person) []string {
	out := []string{}
	for _, p := range people {
		out = append(out, p.Name)
	}
	return out
}

func TestLoad_DiscardsBlankNames(t *testing.T) {
	f := setup(t)

	assert.Equal(t, []string{"Ana", "Bo"}, names(f.svc.People(attendee.Student)))
	assert.Equal(t, []string{"Cy"}, names(f.svc.People(attendee.Staff)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.RosterPeople.WithLabelValues("student", "pending")))
}

func TestLoad_FailureEmptiesRoster(t *testing.T) {
	f := setup(t)
	f.st.fetchErr = errors.New("connection refused")

	n, err := f.svc.Load(context.Background(), attendee.Student)
	assert.Zero(t, n)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, attendee.Student, fetchErr.Kind)
	assert.Empty(t, f.svc.People(attendee.Student))
	assert.Equal(t, []string{"Cy"}, names(f.svc.People(attendee.Staff)))
}

func TestLoad_KeepsCheckedInWithoutTimestamp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.st.InsertBatch(ctx, store.TableStudents, []store.Row{
		{"id": "9", "name": "Dee", "checked_in": true},
		{"id": "10", "name": "Eli", "checked_in": true, "checked_in_at": "yesterday"},
	}))

	n, err := f.svc.Load(ctx, attendee.Student)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	for _, id := range []string{"9", "10"} {
		p, ok := f.svc.Get(attendee.Student, id)
		require.True(t, ok, id)
		assert.True(t, p.CheckedIn, id)
		assert.NotNil(t, p.CheckedInAt, id)
	}
	assert.Equal(t, 3, f.svc.Stats(attendee.Student).CheckedIn)
}

func TestBuckets_FilterByQuery(t *testing.T) {
	f := setup(t)

	b := f.svc.Buckets(attendee.Student, "")
	assert.Equal(t, []string{"Ana"}, names(b.Pending))
	assert.Equal(t, []string{"Bo"}, names(b.CheckedIn))

	b = f.svc.Buckets(attendee.Student, "spain")
	assert.Empty(t, b.Pending)
	assert.Equal(t, []string{"Bo"}, names(b.CheckedIn))
}

func TestCheckIn_UpdatesRosterAndStore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.CheckIn(ctx, attendee.Student, "1", "desk-1")
	require.NoError(t, err)
	assert.True(t, p.CheckedIn)
	require.NotNil(t, p.CheckedInAt)
	assert.Equal(t, fixedNow, *p.CheckedInAt)

	b := f.svc.Buckets(attendee.Student, "")
	assert.Empty(t, b.Pending)
	assert.Equal(t, []string{"Ana", "Bo"}, names(b.CheckedIn))

	row, err := f.st.FetchByID(ctx, store.TableStudents, "1")
	require.NoError(t, err)
	assert.Equal(t, true, row["checked_in"])
	assert.Equal(t, "2024-06-01T09:30:00Z", row["checked_in_at"])

	logs := f.st.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, store.LogEntry{
		PersonID:    "1",
		PersonType:  "student",
		PersonName:  "Ana",
		Action:      audit.ActionCheckedIn,
		PerformedBy: "desk-1",
		CreatedAt:   fixedNow,
	}, logs[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Operations.WithLabelValues("student", OpCheckIn, metrics.ResultOK)))
}

func TestCheckInCheckOut_RoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CheckIn(ctx, attendee.Student, "1", "")
	require.NoError(t, err)
	p, err := f.svc.CheckOut(ctx, attendee.Student, "1", "")
	require.NoError(t, err)

	assert.False(t, p.CheckedIn)
	assert.Nil(t, p.CheckedInAt)

	local, ok := f.svc.Get(attendee.Student, "1")
	require.True(t, ok)
	assert.False(t, local.CheckedIn)
	assert.Nil(t, local.CheckedInAt)

	row, err := f.st.FetchByID(ctx, store.TableStudents, "1")
	require.NoError(t, err)
	assert.Equal(t, false, row["checked_in"])
	assert.NotContains(t, row, "checked_in_at")

	logs := f.st.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, audit.ActionUnchecked, logs[1].Action)
	assert.Equal(t, audit.UnknownOperator, logs[1].PerformedBy)
}

func TestCheckIn_DuplicateRefreshesTimestamp(t *testing.T) {
	now := fixedNow
	f := setup(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := f.svc.CheckIn(ctx, attendee.Student, "2", "")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	p, err := f.svc.CheckIn(ctx, attendee.Student, "2", "")
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(time.Minute), *p.CheckedInAt)
}

func TestUpdate_EmptyPatchIsNoop(t *testing.T) {
	f := setup(t)

	before, _ := f.svc.Get(attendee.Student, "2")
	p, err := f.svc.Update(context.Background(), attendee.Student, "2", attendee.Patch{}, "")
	require.NoError(t, err)

	assert.Equal(t, before, p)
	assert.Zero(t, f.st.updates.Load())
}

func TestUpdate_BlankValueIsNotSent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var patch attendee.Patch
	patch.Set("country", "")
	p, err := f.svc.Update(ctx, attendee.Student, "2", patch, "")
	require.NoError(t, err)

	assert.Equal(t, "Spain", p.Fields["country"])
	assert.Zero(t, f.st.updates.Load())

	row, err := f.st.FetchByID(ctx, store.TableStudents, "2")
	require.NoError(t, err)
	assert.Equal(t, "Spain", row["country"])
	local, _ := f.svc.Get(attendee.Student, "2")
	assert.Equal(t, "Spain", local.Fields["country"])
}

func TestUpdate_MergesAndClears(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var patch attendee.Patch
	patch.Set("room", "12").Clear("country")
	p, err := f.svc.Update(ctx, attendee.Student, "1", patch, "")
	require.NoError(t, err)

	assert.Equal(t, "12", p.Fields["room"])
	assert.Equal(t, "", p.Fields["country"])
	assert.Equal(t, "Ana", p.Name)

	row, err := f.st.FetchByID(ctx, store.TableStudents, "1")
	require.NoError(t, err)
	assert.Equal(t, "12", row["room"])
	assert.NotContains(t, row, "country")
	assert.Empty(t, f.st.Logs())
}

func TestUpdate_CheckedInChangeIsAudited(t *testing.T) {
	f := setup(t)

	var patch attendee.Patch
	patch.CheckOut()
	_, err := f.svc.Update(context.Background(), attendee.Student, "2", patch, "admin")
	require.NoError(t, err)

	logs := f.st.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, audit.ActionUnchecked, logs[0].Action)
	assert.Equal(t, "admin", logs[0].PerformedBy)
}

func TestUpdate_DecodedCheckInUsesClock(t *testing.T) {
	f := setup(t)

	var patch attendee.Patch
	require.NoError(t, json.Unmarshal([]byte(`{"checkedIn": true}`), &patch))
	p, err := f.svc.Update(context.Background(), attendee.Student, "1", patch, "admin")
	require.NoError(t, err)
	require.NotNil(t, p.CheckedInAt)
	assert.Equal(t, fixedNow, *p.CheckedInAt)

	row, err := f.st.FetchByID(context.Background(), store.TableStudents, "1")
	require.NoError(t, err)
	assert.Equal(t, attendee.FormatTime(fixedNow), row["checked_in_at"])
}

func TestUpdate_ValidationBeforeRemoteCall(t *testing.T) {
	f := setup(t)

	var patch attendee.Patch
	patch.Set("email", "broken").Clear("name")
	_, err := f.svc.Update(context.Background(), attendee.Student, "1", patch, "")

	var verr *attendee.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
	assert.Zero(t, f.st.updates.Load())
}

func TestCheckIn_RemoteFailureRollsBack(t *testing.T) {
	f := setup(t)
	f.st.updateErr = errors.New("constraint violation")

	_, err := f.svc.CheckIn(context.Background(), attendee.Student, "1", "")

	var werr *RemoteWriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, OpCheckIn, werr.Op)
	assert.Equal(t, "1", werr.ID)
	assert.False(t, werr.Retryable())

	local, _ := f.svc.Get(attendee.Student, "1")
	assert.False(t, local.CheckedIn)
	assert.Nil(t, local.CheckedInAt)
	assert.Equal(t, []string{"Ana"}, names(f.svc.Buckets(attendee.Student, "").Pending))
	assert.Empty(t, f.st.Logs())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Operations.WithLabelValues("student", OpCheckIn, metrics.ResultRollback)))
}

func TestCheckIn_TimeoutIsRetryable(t *testing.T) {
	f := setup(t, WithTimeout(20*time.Millisecond))
	f.st.delay = time.Second

	_, err := f.svc.CheckIn(context.Background(), attendee.Staff, "t1", "")

	var werr *RemoteWriteError
	require.ErrorAs(t, err, &werr)
	assert.True(t, werr.Retryable())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	local, _ := f.svc.Get(attendee.Staff, "t1")
	assert.False(t, local.CheckedIn)
}

func TestRollback_KeepsNewerLocalWrite(t *testing.T) {
	f := setup(t)
	f.st.updateErr = errors.New("network down")

	newer := attendee.New(attendee.Student, "1", "Ana Maria")
	f.st.beforeUpdate = func() {
		f.svc.rosters[attendee.Student].Put(newer)
	}

	_, err := f.svc.CheckIn(context.Background(), attendee.Student, "1", "")
	require.Error(t, err)

	local, _ := f.svc.Get(attendee.Student, "1")
	assert.Equal(t, "Ana Maria", local.Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Operations.WithLabelValues("student", OpCheckIn, metrics.ResultError)))
}

func TestCheckIn_UnknownID(t *testing.T) {
	f := setup(t)

	_, err := f.svc.CheckIn(context.Background(), attendee.Student, "404", "")

	var werr *RemoteWriteError
	require.ErrorAs(t, err, &werr)
	assert.True(t, werr.NotFound())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, f.st.updates.Load())
}

func TestCheckIn_AdoptsRecordAddedAfterLoad(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.st.InsertBatch(ctx, store.TableStudents, []store.Row{{"id": "4", "name": "Abe"}}))

	_, err := f.svc.CheckIn(ctx, attendee.Student, "4", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Abe", "Ana", "Bo"}, names(f.svc.People(attendee.Student)))
}

func TestCheckIn_AuditFailureDoesNotFail(t *testing.T) {
	f := setup(t)
	f.st.logErr = errors.New("log table missing")

	p, err := f.svc.CheckIn(context.Background(), attendee.Student, "1", "")
	require.NoError(t, err)
	assert.True(t, p.CheckedIn)
}

func TestUnknownKind(t *testing.T) {
	f := setup(t)

	_, err := f.svc.CheckIn(context.Background(), attendee.Kind("guest"), "1", "")
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = f.svc.Load(context.Background(), attendee.Kind("guest"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSearchAndFetchByState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	found, err := f.svc.Search(ctx, attendee.Staff, "CENTR")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cy"}, names(found))

	all, err := f.svc.Search(ctx, attendee.Student, "  ")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	in, err := f.svc.FetchByState(ctx, attendee.Student, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bo"}, names(in))

	pending, err := f.svc.FetchByState(ctx, attendee.Student, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana"}, names(pending))
}

func TestStats(t *testing.T) {
	f := setup(t)
	st := f.svc.Stats(attendee.Student)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.CheckedIn)
	assert.Equal(t, 1, st.Pending)
}
