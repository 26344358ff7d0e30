package roster

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/attendee"
)

func TestRoster_ReplaceDiscardsInvalid(t *testing.T) {
	r := New(attendee.Student)
	kept := r.Replace([]attendee.Person{
		person(attendee.Student, "1", "Ana", false, nil),
		person(attendee.Student, "2", "   ", false, nil),
		person(attendee.Student, "", "NoID", false, nil),
		person(attendee.Student, "1", "Dup", false, nil),
		person(attendee.Staff, "9", "Wrong kind", false, nil),
		person(attendee.Student, "3", "Bo", true, nil),
	})

	assert.Equal(t, 2, kept)
	assert.Equal(t, []string{"Ana", "Bo"}, names(r.Snapshot()))
}

func TestRoster_PutKeepsPosition(t *testing.T) {
	r := New(attendee.Student)
	r.Replace(sampleRoster())

	ana, _, ok := r.Get("1")
	require.True(t, ok)
	ana.CheckedIn = true
	r.Put(ana)

	b := Partition(r.Snapshot(), "")
	assert.Empty(t, b.Pending)
	assert.Equal(t, []string{"Ana", "Bo"}, names(b.CheckedIn))
}

func TestRoster_PutInsertsInNameOrder(t *testing.T) {
	r := New(attendee.Staff)
	r.Replace([]attendee.Person{
		person(attendee.Staff, "1", "Ana", false, nil),
		person(attendee.Staff, "3", "Cy", false, nil),
	})

	r.Put(person(attendee.Staff, "2", "Bo", false, nil))
	r.Put(person(attendee.Staff, "4", "Zed", false, nil))
	assert.Equal(t, []string{"Ana", "Bo", "Cy", "Zed"}, names(r.Snapshot()))
	assert.Equal(t, 4, r.Len())
}

func TestRoster_CompareAndSwap(t *testing.T) {
	r := New(attendee.Student)
	r.Replace(sampleRoster())

	_, rev, ok := r.Get("1")
	require.True(t, ok)

	changed := person(attendee.Student, "1", "Ana", true, nil)
	newRev := r.Put(changed)
	assert.Greater(t, newRev, rev)

	stale := person(attendee.Student, "1", "Ana", false, nil)
	assert.False(t, r.CompareAndSwap("1", rev, stale))
	got, _, _ := r.Get("1")
	assert.True(t, got.CheckedIn)

	assert.True(t, r.CompareAndSwap("1", newRev, stale))
	got, _, _ = r.Get("1")
	assert.False(t, got.CheckedIn)

	assert.False(t, r.CompareAndSwap("missing", 1, stale))
}

func TestRoster_SnapshotIsolation(t *testing.T) {
	r := New(attendee.Student)
	r.Replace(sampleRoster())

	snap := r.Snapshot()
	snap[0].Fields["country"] = "Changed"

	got, _, _ := r.Get("1")
	assert.Equal(t, "Italy", got.Fields["country"])
}

func TestRoster_ConcurrentPuts(t *testing.T) {
	r := New(attendee.Student)
	r.Replace(sampleRoster())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _, _ := r.Get("1")
			p.CheckedIn = i%2 == 0
			r.Put(p)
			_ = Partition(r.Snapshot(), "ana")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 2, r.Len())
}
