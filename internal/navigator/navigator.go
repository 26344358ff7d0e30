package navigator

import (
	"errors"
	"fmt"

	"checkin/internal/attendee"
)

// View names a screen.
type View string

const (
	Pending         View = "pending"
	Completed       View = "completed"
	Detail          View = "detail"
	CheckedInDetail View = "checked_in_detail"
)

// ParseView accepts a tab name.
func ParseView(s string) (View, error) {
	switch View(s) {
	case Pending, Completed, Detail, CheckedInDetail:
		return View(s), nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// IsDetail reports whether the view shows a single person.
func (v View) IsDetail() bool {
	return v == Detail || v == CheckedInDetail
}

// ErrInvalidTransition is returned when an event does not apply to the
// current view. The state is left unchanged.
var ErrInvalidTransition = errors.New("invalid view transition")

// State is the current screen and the selected person id, if any.
type State struct {
	View     View   `json:"view"`
	Selected string `json:"selected,omitempty"`
}

// Navigator is the screen state machine. It is not safe for concurrent use;
// Session adds locking.
type Navigator struct {
	state State
}

// New starts on the pending list with nothing selected.
func New() *Navigator {
	return &Navigator{state: State{View: Pending}}
}

// State returns the current state.
func (n *Navigator) State() State { return n.state }

// Select opens the detail view matching the person's check-in state.
func (n *Navigator) Select(p attendee.Person) error {
	if n.state.View.IsDetail() {
		return fmt.Errorf("%w: select from %s", ErrInvalidTransition, n.state.View)
	}
	view := Detail
	if p.CheckedIn {
		view = CheckedInDetail
	}
	n.state = State{View: view, Selected: p.ID}
	return nil
}

// CheckedIn follows a successful check-in from the detail view.
func (n *Navigator) CheckedIn() error {
	if n.state.View != Detail {
		return fmt.Errorf("%w: check-in from %s", ErrInvalidTransition, n.state.View)
	}
	n.state = State{View: Pending}
	return nil
}

// CheckedOut follows a successful check-out from the checked-in detail view.
func (n *Navigator) CheckedOut() error {
	if n.state.View != CheckedInDetail {
		return fmt.Errorf("%w: check-out from %s", ErrInvalidTransition, n.state.View)
	}
	n.state = State{View: Completed}
	return nil
}

// Back leaves a detail view for the list it came from.
func (n *Navigator) Back() error {
	switch n.state.View {
	case Detail:
		n.state = State{View: Pending}
	case CheckedInDetail:
		n.state = State{View: Completed}
	default:
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, n.state.View)
	}
	return nil
}

// SwitchTab moves between the two lists. While a detail view is open the
// switch is ignored and false is returned.
func (n *Navigator) SwitchTab(tab View) (bool, error) {
	if tab != Pending && tab != Completed {
		return false, fmt.Errorf("%w: tab %q", ErrInvalidTransition, tab)
	}
	if n.state.View.IsDetail() {
		return false, nil
	}
	n.state = State{View: tab}
	return true, nil
}

// Reset returns to the pending list.
func (n *Navigator) Reset() {
	n.state = State{View: Pending}
}
