package attendee

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"checkin/internal/store"
)

// Wire columns shared by both kinds.
const (
	ColumnID          = "id"
	ColumnCheckedIn   = "checked_in"
	ColumnCheckedInAt = "checked_in_at"
)

// Layouts accepted for checked_in_at besides RFC 3339.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ErrTimestampFilled is returned with a usable Person when a checked-in row
// had a missing or unreadable checked_in_at and a fallback was used.
var ErrTimestampFilled = errors.New("check-in timestamp filled")

// ToDomain converts a store row into a Person of kind k. Absent fields become
// "" and a pending person never carries a timestamp. A checked-in person
// always does: when checked_in_at is missing or unreadable it falls back to
// updated_at, then created_at, then the Unix epoch, and the Person is returned
// together with ErrTimestampFilled.
func ToDomain(k Kind, row store.Row) (Person, error) {
	id := stringValue(row[ColumnID])
	if id == "" {
		return Person{}, errors.New("row without id")
	}
	p := New(k, id, stringValue(row["name"]))
	for _, f := range Schema(k) {
		if f.Name == "name" {
			continue
		}
		p.Fields[f.Name] = stringValue(row[f.Column])
	}

	p.CheckedIn = boolValue(row[ColumnCheckedIn])
	if !p.CheckedIn {
		return p, nil
	}
	at, err := timeValue(row[ColumnCheckedInAt])
	if err == nil && at != nil {
		p.CheckedInAt = at
		return p, nil
	}
	p.CheckedInAt = fallbackTime(row)
	if err != nil {
		return p, fmt.Errorf("%s %s: %w: %v", k, id, ErrTimestampFilled, err)
	}
	return p, fmt.Errorf("%s %s: %w: checked_in_at missing", k, id, ErrTimestampFilled)
}

func fallbackTime(row store.Row) *time.Time {
	for _, col := range []string{"updated_at", "created_at"} {
		if at, err := timeValue(row[col]); err == nil && at != nil {
			return at
		}
	}
	epoch := time.Unix(0, 0).UTC()
	return &epoch
}

// ToRemote converts a patch into a sparse store row. Set("") entries and
// fields unknown to k are left out; Clear entries become null.
func ToRemote(k Kind, patch Patch) store.Row {
	row := store.Row{}
	for _, name := range patch.Fields() {
		v, _ := patch.Value(name)
		f, ok := Lookup(k, name)
		if !ok || v.noop() {
			continue
		}
		if v.Clear {
			row[f.Column] = nil
			continue
		}
		row[f.Column] = v.Str
	}
	if in, ok := patch.CheckedIn(); ok {
		row[ColumnCheckedIn] = in
		row[ColumnCheckedInAt] = nil
		if in && patch.checkedInAt != nil {
			row[ColumnCheckedInAt] = FormatTime(*patch.checkedInAt)
		}
	}
	return row
}

// FromDomain converts a whole person into an insertable row. Empty fields are
// omitted so the store defaults apply.
func FromDomain(p Person) store.Row {
	row := store.Row{"name": p.Name, ColumnCheckedIn: p.CheckedIn}
	if p.ID != "" {
		row[ColumnID] = p.ID
	}
	for _, f := range Schema(p.Kind) {
		if v := p.Fields[f.Name]; f.Name != "name" && v != "" {
			row[f.Column] = v
		}
	}
	if p.CheckedInAt != nil {
		row[ColumnCheckedInAt] = FormatTime(*p.CheckedInAt)
	}
	return row
}

// FormatTime renders a timestamp for the wire.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses a wire timestamp.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprint(v)
}

func boolValue(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "1", "yes", "y", "sim":
			return true
		}
	case float64:
		return val != 0
	case int64:
		return val != 0
	case int:
		return val != 0
	}
	return false
}

func timeValue(v any) (*time.Time, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t := val.UTC()
		return &t, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		t, err := ParseTime(val)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	return nil, fmt.Errorf("unsupported timestamp type %T", v)
}
