package attendee

import (
	"strings"
	"time"
)

// NotProvided is shown in place of an empty profile field.
const NotProvided = "Not provided"

// Person is one attendee of either kind.
type Person struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	Name        string            `json:"name"`
	Fields      map[string]string `json:"fields"` // every schema field except name
	CheckedIn   bool              `json:"checkedIn"`
	CheckedInAt *time.Time        `json:"checkedInAt,omitempty"`
}

// Field returns the raw value of a profile field, "" when empty or unknown.
func (p Person) Field(name string) string {
	if name == "name" {
		return p.Name
	}
	return p.Fields[name]
}

// Display returns the field value or NotProvided.
func (p Person) Display(name string) string {
	if v := strings.TrimSpace(p.Field(name)); v != "" {
		return v
	}
	return NotProvided
}

// Clone returns a deep copy.
func (p Person) Clone() Person {
	out := p
	out.Fields = make(map[string]string, len(p.Fields))
	for k, v := range p.Fields {
		out.Fields[k] = v
	}
	if p.CheckedInAt != nil {
		t := *p.CheckedInAt
		out.CheckedInAt = &t
	}
	return out
}

// Valid reports whether the record may enter a roster.
func (p Person) Valid() bool {
	return p.ID != "" && strings.TrimSpace(p.Name) != ""
}

// New returns a person of kind k with every schema field present.
func New(k Kind, id, name string) Person {
	p := Person{ID: id, Kind: k, Name: name, Fields: map[string]string{}}
	for _, f := range Schema(k) {
		if f.Name != "name" {
			p.Fields[f.Name] = ""
		}
	}
	return p
}
