package attendee

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Value is one entry of a Patch: either a new string or an explicit clear.
type Value struct {
	Str   string
	Clear bool
}

// noop reports whether writing v changes nothing. Setting "" is dropped so a
// form that leaves a field blank never erases stored data; use Clear for that.
func (v Value) noop() bool {
	return !v.Clear && v.Str == ""
}

// Patch is a partial edit keyed by domain field name. Fields not mentioned are
// left alone. The zero value is an empty patch.
type Patch struct {
	fields      map[string]Value
	checkedIn   *bool
	checkedInAt *time.Time
}

// Set assigns a string field.
func (p *Patch) Set(field, value string) *Patch {
	p.put(field, Value{Str: value})
	return p
}

// Clear writes null to a field.
func (p *Patch) Clear(field string) *Patch {
	p.put(field, Value{Clear: true})
	return p
}

// CheckIn marks the person checked in at t.
func (p *Patch) CheckIn(t time.Time) *Patch {
	in := true
	at := t.UTC()
	p.checkedIn, p.checkedInAt = &in, &at
	return p
}

// CheckOut marks the person pending and clears the timestamp.
func (p *Patch) CheckOut() *Patch {
	out := false
	p.checkedIn, p.checkedInAt = &out, nil
	return p
}

func (p *Patch) put(field string, v Value) {
	if p.fields == nil {
		p.fields = map[string]Value{}
	}
	p.fields[field] = v
}

// Fields returns the mentioned field names in sorted order.
func (p Patch) Fields() []string {
	out := make([]string, 0, len(p.fields))
	for k := range p.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Value returns the entry for field.
func (p Patch) Value(field string) (Value, bool) {
	v, ok := p.fields[field]
	return v, ok
}

// CheckedIn returns the requested check-in state, if any.
func (p Patch) CheckedIn() (bool, bool) {
	if p.checkedIn == nil {
		return false, false
	}
	return *p.checkedIn, true
}

// Empty reports whether applying the patch would change nothing.
func (p Patch) Empty() bool {
	if p.checkedIn != nil {
		return false
	}
	for _, v := range p.fields {
		if !v.noop() {
			return false
		}
	}
	return true
}

// Apply returns a copy of person with the patch merged in.
func (p Patch) Apply(person Person) Person {
	out := person.Clone()
	for name, v := range p.fields {
		if v.noop() {
			continue
		}
		if name == "name" {
			out.Name = v.Str
			continue
		}
		if _, ok := Lookup(out.Kind, name); ok {
			out.Fields[name] = v.Str
		}
	}
	if p.checkedIn != nil {
		out.CheckedIn = *p.checkedIn
		out.CheckedInAt = nil
		if *p.checkedIn && p.checkedInAt != nil {
			at := *p.checkedInAt
			out.CheckedInAt = &at
		}
	}
	return out
}

// UnmarshalJSON decodes {"field": "value" | null, "checkedIn": bool}.
// A null field is a clear; checking in through an edit stamps the current time.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Patch{}
	for key, msg := range raw {
		if key == "checkedIn" {
			var in bool
			if err := json.Unmarshal(msg, &in); err != nil {
				return fmt.Errorf("checkedIn: %w", err)
			}
			if in {
				p.CheckIn(time.Now())
			} else {
				p.CheckOut()
			}
			continue
		}
		var s *string
		if err := json.Unmarshal(msg, &s); err != nil {
			return fmt.Errorf("%s: expected string or null", key)
		}
		if s == nil {
			p.Clear(key)
		} else {
			p.Set(key, *s)
		}
	}
	return nil
}
