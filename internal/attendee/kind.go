package attendee

import (
	"fmt"
	"strings"

	"checkin/internal/store"
)

// Kind tags the two attendee variants. Each kind lives in its own table and
// id space.
type Kind string

const (
	Student Kind = "student"
	Staff   Kind = "staff"
)

// Kinds lists every variant in display order.
var Kinds = []Kind{Student, Staff}

// ParseKind accepts the kind name or its table name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student", "students":
		return Student, nil
	case "staff", "staffs":
		return Staff, nil
	}
	return "", fmt.Errorf("unknown attendee kind %q", s)
}

// Table is the store table holding this kind.
func (k Kind) Table() string {
	if k == Staff {
		return store.TableStaff
	}
	return store.TableStudents
}

// Field describes one profile field of a kind.
type Field struct {
	Name       string // domain name, camelCase
	Column     string // wire name, snake_case
	Searchable bool
}

var schemas = map[Kind][]Field{
	Student: {
		{Name: "name", Column: "name", Searchable: true},
		{Name: "status", Column: "status"},
		{Name: "gender", Column: "gender"},
		{Name: "email", Column: "email", Searchable: true},
		{Name: "phone", Column: "phone"},
		{Name: "age", Column: "age"},
		{Name: "country", Column: "country", Searchable: true},
		{Name: "nationality", Column: "nationality"},
		{Name: "language", Column: "language", Searchable: true},
		{Name: "church", Column: "church", Searchable: true},
		{Name: "room", Column: "room", Searchable: true},
		{Name: "bedKit", Column: "bed_kit"},
		{Name: "bus", Column: "bus"},
		{Name: "documents", Column: "documents"},
		{Name: "underageDoc", Column: "underage_doc"},
		{Name: "healthyForm", Column: "healthy_form"},
		{Name: "obs", Column: "obs"},
	},
	Staff: {
		{Name: "name", Column: "name", Searchable: true},
		{Name: "email", Column: "email", Searchable: true},
		{Name: "cellphone", Column: "cellphone"},
		{Name: "igreja", Column: "igreja", Searchable: true},
		{Name: "country", Column: "country", Searchable: true},
		{Name: "nationality", Column: "nationality"},
		{Name: "area", Column: "area", Searchable: true},
		{Name: "kitCama", Column: "kit_cama"},
		{Name: "quarto", Column: "quarto", Searchable: true},
		{Name: "healthyForm", Column: "healthy_form"},
	},
}

// Schema returns the profile fields of k, name first.
func Schema(k Kind) []Field {
	return schemas[k]
}

// Lookup finds a field of k by domain name.
func Lookup(k Kind, name string) (Field, bool) {
	for _, f := range schemas[k] {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// SearchFields returns the domain names matched by free-text search.
func SearchFields(k Kind) []string {
	var out []string
	for _, f := range schemas[k] {
		if f.Searchable {
			out = append(out, f.Name)
		}
	}
	return out
}

// SearchColumns returns the wire names matched by free-text search.
func SearchColumns(k Kind) []string {
	var out []string
	for _, f := range schemas[k] {
		if f.Searchable {
			out = append(out, f.Column)
		}
	}
	return out
}
