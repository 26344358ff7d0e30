package attendee

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		kind   Kind
		patch  func(p *Patch)
		fields []string
	}{
		{"ok", Student, func(p *Patch) { p.Set("name", "Ana").Set("email", "ana@example.com") }, nil},
		{"blank email skipped", Student, func(p *Patch) { p.Set("email", "") }, nil},
		{"blank name", Student, func(p *Patch) { p.Set("name", "   ") }, []string{"name"}},
		{"cleared name", Staff, func(p *Patch) { p.Clear("name") }, []string{"name"}},
		{"bad email", Staff, func(p *Patch) { p.Set("email", "not-an-email") }, []string{"email"}},
		{"field of other kind", Staff, func(p *Patch) { p.Set("church", "Central") }, []string{"church"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var p Patch
			tc.patch(&p)
			err := Validate(tc.kind, p)
			if tc.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, f := range tc.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestValidatePerson(t *testing.T) {
	p := New(Student, "s1", " ")
	p.Fields["email"] = "nope"

	err := ValidatePerson(p)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
	assert.Contains(t, err.Error(), "email: invalid email")

	p.Name = "Ana"
	p.Fields["email"] = "ana@example.com"
	assert.NoError(t, ValidatePerson(p))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Students")
	require.NoError(t, err)
	assert.Equal(t, Student, k)
	assert.Equal(t, "staff", Staff.Table())

	_, err = ParseKind("guests")
	assert.Error(t, err)
}

func TestSearchFields(t *testing.T) {
	assert.Equal(t, []string{"name", "email", "country", "language", "church", "room"}, SearchFields(Student))
	assert.Equal(t, []string{"name", "email", "igreja", "country", "area", "quarto"}, SearchFields(Staff))
	assert.Equal(t, []string{"name", "email", "igreja", "country", "area", "quarto"}, SearchColumns(Staff))
}
