package roster

import (
	"strings"

	"checkin/internal/attendee"
)

// Buckets splits a roster into pending and checked-in people.
type Buckets struct {
	Pending   []attendee.Person `json:"pending"`
	CheckedIn []attendee.Person `json:"checkedIn"`
}

// Stats counts a roster by check-in state.
type Stats struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checkedIn"`
	Pending   int `json:"pending"`
}

// Partition splits people by CheckedIn, keeping input order, and keeps only
// those matching query. A blank query matches everyone.
func Partition(people []attendee.Person, query string) Buckets {
	b := Buckets{Pending: []attendee.Person{}, CheckedIn: []attendee.Person{}}
	needle := normalize(query)
	for _, p := range people {
		if !matches(p, needle) {
			continue
		}
		if p.CheckedIn {
			b.CheckedIn = append(b.CheckedIn, p)
		} else {
			b.Pending = append(b.Pending, p)
		}
	}
	return b
}

// Matches reports whether any search field of p contains query, ignoring case.
func Matches(p attendee.Person, query string) bool {
	return matches(p, normalize(query))
}

// Filter returns the people matching query in input order.
func Filter(people []attendee.Person, query string) []attendee.Person {
	needle := normalize(query)
	out := make([]attendee.Person, 0, len(people))
	for _, p := range people {
		if matches(p, needle) {
			out = append(out, p)
		}
	}
	return out
}

// Count tallies people by state.
func Count(people []attendee.Person) Stats {
	s := Stats{Total: len(people)}
	for _, p := range people {
		if p.CheckedIn {
			s.CheckedIn++
		}
	}
	s.Pending = s.Total - s.CheckedIn
	return s
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func matches(p attendee.Person, needle string) bool {
	if needle == "" {
		return true
	}
	for _, f := range attendee.SearchFields(p.Kind) {
		if strings.Contains(strings.ToLower(p.Field(f)), needle) {
			return true
		}
	}
	return false
}
