package attendee

import (
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError lists per-field problems found before any remote call.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
}

// Validate checks an edit for kind k. The name may not be cleared or blanked,
// a provided email must be well formed and every field must belong to k.
func Validate(k Kind, patch Patch) error {
	verr := &ValidationError{}
	for _, name := range patch.Fields() {
		v, _ := patch.Value(name)
		if _, ok := Lookup(k, name); !ok {
			verr.add(name, "unknown field")
			continue
		}
		switch name {
		case "name":
			if v.Clear || (v.Str != "" && strings.TrimSpace(v.Str) == "") {
				verr.add(name, "name is required")
			}
		case "email":
			if v.Str != "" && validate.Var(strings.TrimSpace(v.Str), "email") != nil {
				verr.add(name, "invalid email")
			}
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// ValidatePerson checks a full record before insert.
func ValidatePerson(p Person) error {
	verr := &ValidationError{}
	if strings.TrimSpace(p.Name) == "" {
		verr.add("name", "name is required")
	}
	if email := strings.TrimSpace(p.Fields["email"]); email != "" && validate.Var(email, "email") != nil {
		verr.add("email", "invalid email")
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
