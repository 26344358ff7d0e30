package attendee

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/store"
)

func TestToDomain_DefaultsAbsentFields(t *testing.T) {
	p, err := ToDomain(Student, store.Row{"id": "s1", "name": "Ana", "bed_kit": "yes"})
	require.NoError(t, err)

	assert.Equal(t, "s1", p.ID)
	assert.Equal(t, Student, p.Kind)
	assert.Equal(t, "yes", p.Fields["bedKit"])
	assert.Equal(t, "", p.Fields["country"])
	assert.Len(t, p.Fields, len(Schema(Student))-1)
	assert.False(t, p.CheckedIn)
	assert.Nil(t, p.CheckedInAt)
	assert.Equal(t, NotProvided, p.Display("country"))
	assert.Equal(t, "yes", p.Display("bedKit"))
}

func TestToDomain_StaffColumns(t *testing.T) {
	p, err := ToDomain(Staff, store.Row{
		"id": "t1", "name": "Bo", "igreja": "Central", "kit_cama": "no", "quarto": "3B",
	})
	require.NoError(t, err)
	assert.Equal(t, "Central", p.Fields["igreja"])
	assert.Equal(t, "no", p.Fields["kitCama"])
	assert.Equal(t, "3B", p.Field("quarto"))
	assert.NotContains(t, p.Fields, "church")
}

func TestToDomain_CheckedInVariants(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want bool
	}{
		{"bool", true, true},
		{"string true", "true", true},
		{"string t", "t", true},
		{"string false", "false", false},
		{"integer", int64(1), true},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ToDomain(Student, store.Row{"id": "s1", "name": "Ana", "checked_in": tc.in})
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.CheckedIn)
		})
	}
}

func TestToDomain_PendingDropsStaleTimestamp(t *testing.T) {
	p, err := ToDomain(Student, store.Row{
		"id": "s1", "name": "Ana", "checked_in": false, "checked_in_at": "2024-06-01T09:00:00Z",
	})
	require.NoError(t, err)
	assert.Nil(t, p.CheckedInAt)
}

func TestToDomain_Errors(t *testing.T) {
	_, err := ToDomain(Student, store.Row{"name": "Ana"})
	assert.Error(t, err)
}

func TestToDomain_FillsCheckedInTimestamp(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	updated := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		row  store.Row
		want time.Time
	}{
		{"missing", store.Row{"id": "9", "name": "Ana", "checked_in": true}, epoch},
		{"empty", store.Row{"id": "9", "name": "Ana", "checked_in": true, "checked_in_at": "  "}, epoch},
		{"unreadable", store.Row{"id": "10", "name": "Ana", "checked_in": true, "checked_in_at": "yesterday"}, epoch},
		{"wrong type", store.Row{"id": "10", "name": "Ana", "checked_in": true, "checked_in_at": 42}, epoch},
		{"from updated_at", store.Row{
			"id": "10", "name": "Ana", "checked_in": true, "checked_in_at": "yesterday",
			"updated_at": "2024-06-01T09:00:00Z", "created_at": "2024-01-01T00:00:00Z",
		}, updated},
		{"from created_at", store.Row{
			"id": "10", "name": "Ana", "checked_in": true, "created_at": "2024-06-01T09:00:00Z",
		}, updated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ToDomain(Student, tc.row)
			assert.ErrorIs(t, err, ErrTimestampFilled)
			assert.True(t, p.Valid())
			assert.True(t, p.CheckedIn)
			require.NotNil(t, p.CheckedInAt)
			assert.True(t, tc.want.Equal(*p.CheckedInAt))
		})
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	at := time.Date(2024, 6, 1, 9, 30, 15, 123456789, time.FixedZone("BRT", -3*3600))

	var patch Patch
	row := ToRemote(Student, *patch.CheckIn(at))
	require.IsType(t, "", row["checked_in_at"])

	p, err := ToDomain(Student, store.Row{"id": "s1", "name": "Ana", "checked_in": row["checked_in"], "checked_in_at": row["checked_in_at"]})
	require.NoError(t, err)
	require.NotNil(t, p.CheckedInAt)
	assert.True(t, at.Equal(*p.CheckedInAt))
	assert.Equal(t, row["checked_in_at"], FormatTime(*p.CheckedInAt))
}

func TestParseTime_PostgresText(t *testing.T) {
	ts, err := ParseTime("2024-06-01 09:00:00.5+00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 500000000, time.UTC), ts)
}

func TestToRemote_Sparse(t *testing.T) {
	var patch Patch
	patch.Set("country", "").Set("room", "12").Set("bedKit", "yes").Clear("obs").Set("unknown", "x")

	row := ToRemote(Student, patch)
	assert.Equal(t, store.Row{"room": "12", "bed_kit": "yes", "obs": nil}, row)
}

func TestToRemote_CheckOutSendsNullTimestamp(t *testing.T) {
	var patch Patch
	row := ToRemote(Staff, *patch.CheckOut())

	assert.Equal(t, store.Row{"checked_in": false, "checked_in_at": nil}, row)
}

func TestFromDomain(t *testing.T) {
	p := New(Staff, "", "Bo")
	p.Fields["kitCama"] = "yes"

	row := FromDomain(p)
	assert.Equal(t, store.Row{"name": "Bo", "checked_in": false, "kit_cama": "yes"}, row)
}
